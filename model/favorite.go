package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// A user can favorite a house once.
type Favorite struct {
	ID        string    `json:"id" gorm:"type:uuid;primarykey"`
	UserID    string    `json:"-" gorm:"type:uuid;uniqueIndex:idx_favorite_user_house"`
	User      *User     `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	HouseID   string    `json:"-" gorm:"type:uuid;uniqueIndex:idx_favorite_user_house"`
	House     *House    `json:"house,omitempty" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt time.Time `json:"created_at"`
}

type PublicFavorite struct {
	ID        string      `json:"id"`
	House     HouseDetail `json:"house"`
	CreatedAt time.Time   `json:"created_at"`
}

type SubmitFavorite struct {
	HouseID string `json:"house_id" validate:"required"`
}

func (base *Favorite) BeforeCreate(tx *gorm.DB) (err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}

	base.ID = id.String()
	return
}

func (f Favorite) ToPublicFormat() PublicFavorite {
	pf := PublicFavorite{
		ID:        f.ID,
		CreatedAt: f.CreatedAt,
	}
	if f.House != nil {
		pf.House = f.House.ToDetailFormat()
	}
	return pf
}

package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errInvalidRating = errors.New("Rating must be between 1 and 5.")

type Review struct {
	ID         string    `json:"id" gorm:"type:uuid;primarykey"`
	HouseID    string    `json:"house_id" gorm:"type:uuid;index"`
	House      *House    `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	ReviewerID string    `json:"-" gorm:"type:uuid;index"`
	Reviewer   *User     `json:"reviewer,omitempty" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PublicReview struct {
	ID               string     `json:"id"`
	HouseID          string     `json:"house_id"`
	Reviewer         PublicUser `json:"reviewer"`
	ReviewerFullName string     `json:"reviewer_full_name"`
	ReviewerAvatar   string     `json:"reviewer_avatar"`
	Rating           int        `json:"rating"`
	Comment          string     `json:"comment"`
	CreatedAt        time.Time  `json:"created_at"`
}

// HouseID may be omitted when the house comes from the URL.
type SubmitReview struct {
	HouseID string `json:"house_id"`
	Rating  int    `json:"rating" validate:"required"`
	Comment string `json:"comment"`
}

type ReviewUpdate struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

func (base *Review) BeforeCreate(tx *gorm.DB) (err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}

	base.ID = id.String()
	return
}

func ValidateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return errInvalidRating
	}
	return nil
}

func (u ReviewUpdate) Changes() (map[string]interface{}, error) {
	changes := map[string]interface{}{}
	if u.Rating != nil {
		if err := ValidateRating(*u.Rating); err != nil {
			return nil, err
		}
		changes["rating"] = *u.Rating
	}
	if u.Comment != nil {
		changes["comment"] = *u.Comment
	}
	return changes, nil
}

func (r Review) ToPublicFormat() PublicReview {
	pr := PublicReview{
		ID:        r.ID,
		HouseID:   r.HouseID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}

	if r.Reviewer != nil {
		pr.Reviewer = r.Reviewer.ToPublicFormat()
		pr.ReviewerFullName = r.Reviewer.Username
		pr.ReviewerAvatar = r.Reviewer.Image
	}

	return pr
}

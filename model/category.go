package model

import (
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type Category struct {
	ID          string `json:"id" gorm:"type:uuid;primarykey"`
	Name        string `json:"name" gorm:"uniqueIndex" validate:"required,max=100"`
	Slug        string `json:"slug" gorm:"uniqueIndex"`
	Description string `json:"description"`
}

type SubmitCategory struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type CategoryUpdate struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description"`
}

func (base *Category) BeforeCreate(tx *gorm.DB) (err error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}

	base.ID = id.String()
	base.Slug = CategorySlug(base.Name)
	return
}

func CategorySlug(name string) string {
	return slug.Make(name)
}

// Changes returns the columns to persist; a renamed category gets a new slug.
func (u CategoryUpdate) Changes() map[string]interface{} {
	changes := map[string]interface{}{}
	if u.Name != nil && trimmed(*u.Name) != "" {
		changes["name"] = trimmed(*u.Name)
		changes["slug"] = CategorySlug(*u.Name)
	}
	if u.Description != nil {
		changes["description"] = *u.Description
	}
	return changes
}

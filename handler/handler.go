package handler

import (
	"time"

	"gorm.io/gorm"

	"rentease/mail"
	"rentease/rental"
	"rentease/storage"
)

type AuthConfig struct {
	JWTSecret []byte
	// Public base URL, used in links sent by mail
	BaseURL                  string
	AdminEmail               string
	RequireEmailVerification bool
	TokenTTL                 time.Duration
}

type Handler struct {
	DB      *gorm.DB
	Rentals *rental.Service
	Mailer  mail.Mailer
	Images  storage.ImageStore
	Auth    AuthConfig
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"rentease/db"
	"rentease/mail"
)

type Config struct {
	Port string

	DBDriver string
	DBPath   string
	DBDSN    string

	JWTSecret string
	// Public base URL of the API, used in mailed links
	Domain                   string
	AdminEmail               string
	RequireEmailVerification bool

	StripeSecretKey string
	PaymentCurrency string
	PaymentTimeout  time.Duration

	SMTP mail.SMTPConfig

	AWSRegion     string
	AWSBucketName string

	LogLevel   log.Lvl
	RequestLog bool
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := env(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseLogLevel(s string) (log.Lvl, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return log.DEBUG, nil
	case "INFO":
		return log.INFO, nil
	case "WARN":
		return log.WARN, nil
	case "ERROR":
		return log.ERROR, nil
	case "OFF":
		return log.OFF, nil
	}
	return log.ERROR, fmt.Errorf("LOG_LEVEL: unknown level %q", s)
}

// LoadConfig reads the environment (after .env was loaded). Only JWT_SECRET is
// required; payments, mail and image upload are disabled when not configured.
func LoadConfig() (Config, error) {
	cfg := Config{
		Port:            env("PORT", "1323"),
		DBDriver:        env("DB_DRIVER", db.DriverSQLite),
		DBPath:          env("DB_PATH", "rentease.db"),
		DBDSN:           env("DB_DSN", ""),
		JWTSecret:       env("JWT_SECRET", ""),
		AdminEmail:      env("ADMIN_EMAIL", ""),
		StripeSecretKey: env("STRIPE_SECRET_KEY", ""),
		PaymentCurrency: strings.ToLower(env("PAYMENT_CURRENCY", "usd")),
		SMTP: mail.SMTPConfig{
			Host:     env("SMTP_HOST", ""),
			Port:     env("SMTP_PORT", "587"),
			User:     env("SMTP_USER", ""),
			Password: env("SMTP_PASSWORD", ""),
			From:     env("SMTP_FROM", ""),
		},
		AWSRegion:     env("AWS_REGION", ""),
		AWSBucketName: env("AWS_BUCKET_NAME", ""),
	}
	cfg.Domain = env("DOMAIN", "http://localhost:"+cfg.Port)

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("missing required config: JWT_SECRET")
	}

	var err error
	if cfg.RequireEmailVerification, err = envBool("REQUIRE_EMAIL_VERIFICATION", true); err != nil {
		return cfg, err
	}
	if cfg.RequestLog, err = envBool("REQUEST_LOG", false); err != nil {
		return cfg, err
	}
	if cfg.LogLevel, err = parseLogLevel(env("LOG_LEVEL", "ERROR")); err != nil {
		return cfg, err
	}
	if cfg.PaymentTimeout, err = time.ParseDuration(env("PAYMENT_TIMEOUT", "10s")); err != nil {
		return cfg, fmt.Errorf("PAYMENT_TIMEOUT: %w", err)
	}

	switch cfg.DBDriver {
	case db.DriverSQLite:
	case db.DriverPostgres:
		if cfg.DBDSN == "" {
			return cfg, fmt.Errorf("missing required config: DB_DSN (DB_DRIVER=postgres)")
		}
	default:
		return cfg, fmt.Errorf("DB_DRIVER: unsupported driver %q", cfg.DBDriver)
	}

	return cfg, nil
}

// DSN is what db.Open expects for the configured driver.
func (c Config) DSN() string {
	if c.DBDriver == db.DriverPostgres {
		return c.DBDSN
	}
	return c.DBPath
}

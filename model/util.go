package model

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	errPasswordsMustMatch = errors.New("Passwords must match.")
	errInvalidEmail       = errors.New("Improperly formatted email address.")
	errInvalidUsername    = errors.New("Username can only contain letters, numbers, and other url-safe characters.")
	errInvalidPhone       = errors.New("Improperly formatted phone number.")
	errInvalidURL         = errors.New("Improperly formatted URL.")
)

var (
	usernameRe = regexp.MustCompile(`^[\w\-._~]+$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRe    = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

func StripUsername(username string) string {
	stripped := strings.ReplaceAll(username, " ", "")
	return strings.ToLower(stripped)
}

func StripEmail(email string) string {
	stripped := strings.ReplaceAll(email, " ", "")
	return strings.ToLower(stripped)
}

func StripPhone(phone string) string {
	stripped := strings.ReplaceAll(phone, "-", "")
	stripped = strings.ReplaceAll(stripped, " ", "")
	stripped = strings.ReplaceAll(stripped, "(", "")
	stripped = strings.ReplaceAll(stripped, ")", "")
	return strings.ToLower(stripped)
}

func IsValidUsername(username string) bool {
	length := len(username) >= 3 && len(username) <= 30
	return length && usernameRe.MatchString(username)
}

func IsValidEmail(email string) bool {
	return emailRe.MatchString(email)
}

func IsValidPhone(phone string) bool {
	return phoneRe.MatchString(phone)
}

func IsValidURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

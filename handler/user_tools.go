package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"rentease/model"
)

const (
	verifyEmailPurpose = "verify-email"
	verifyEmailTTL     = 24 * time.Hour
	defaultTokenTTL    = 72 * time.Hour
)

// UserFromContext reads the identity from the bearer token echo-jwt stored under "user_auth".
func UserFromContext(c echo.Context) (model.AuthUser, error) {
	jwtToken, ok := c.Get("user_auth").(*jwt.Token)
	if !ok {
		return model.AuthUser{}, fmt.Errorf("no token in context")
	}

	claims, ok := jwtToken.Claims.(*model.JwtCustomClaims)
	if !ok {
		return model.AuthUser{}, fmt.Errorf("invalid token claims")
	}
	if claims.Purpose != "" {
		return model.AuthUser{}, fmt.Errorf("%q token is not a login token", claims.Purpose)
	}

	// To make sure it's a valid uuid
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return model.AuthUser{}, fmt.Errorf("invalid subject; expected UUID: %v", err)
	}

	roles := []string{}
	for _, role := range strings.Split(claims.Roles, ",") {
		if role != "" {
			roles = append(roles, role)
		}
	}

	return model.NewAuthUser(id.String(), roles), nil
}

// currentUser is nil for anonymous requests.
func currentUser(c echo.Context) *model.AuthUser {
	u, ok := c.Get("user").(*model.AuthUser)
	if !ok {
		return nil
	}
	return u
}

func requireUser(c echo.Context) (model.AuthUser, error) {
	u := currentUser(c)
	if u == nil {
		return model.AuthUser{}, &echo.HTTPError{Code: http.StatusUnauthorized, Message: "Authentication credentials were not provided."}
	}
	return *u, nil
}

func (h *Handler) tokenTTL() time.Duration {
	if h.Auth.TokenTTL > 0 {
		return h.Auth.TokenTTL
	}
	return defaultTokenTTL
}

func (h *Handler) issueToken(u model.User) (string, error) {
	claims := &model.JwtCustomClaims{
		Roles: strings.Join(u.Roles, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.tokenTTL())),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   u.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.Auth.JWTSecret)
}

// VerificationToken signs the token carried by the link in the verification email.
func VerificationToken(secret []byte, userID string, now time.Time) (string, error) {
	claims := &model.VerifyEmailClaims{
		Purpose: verifyEmailPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(verifyEmailTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// parseVerificationToken returns the user id the token was issued for.
func parseVerificationToken(secret []byte, raw string) (string, error) {
	claims := &model.VerifyEmailClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Purpose != verifyEmailPurpose {
		return "", fmt.Errorf("token purpose %q", claims.Purpose)
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("invalid subject; expected UUID: %v", err)
	}
	return claims.Subject, nil
}

func (h *Handler) verificationLink(token string) string {
	return strings.TrimRight(h.Auth.BaseURL, "/") + "/verify-email?token=" + token
}

// validID rejects ids that cannot be a uuid before they reach the database.
func validID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &echo.HTTPError{Code: http.StatusNotFound, Message: "Not found."}
	}
	return nil
}

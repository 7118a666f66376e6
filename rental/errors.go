package rental

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Service wraps exactly one of them.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	// Missing and invisible records are reported the same way.
	ErrNotFound = errors.New("not found")
	// The payment provider refused the charge.
	ErrUpstream = errors.New("payment failed")
	// The payment provider did not answer in time and the charge needs manual reconciliation.
	ErrPaymentUnknown = errors.New("payment outcome unknown")
)

type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func validationError(field, format string, args ...interface{}) error {
	return &Error{Kind: ErrValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func forbidden(msg string) error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

func notFound() error {
	return &Error{
		Kind:    ErrNotFound,
		Message: "Rent request not found for the current user. Check that you are logged in as either the tenant or the house owner and that the ID is correct.",
	}
}

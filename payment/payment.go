// Package payment charges tenants through an external payment provider.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrOutcomeUnknown is returned when the provider did not answer in time; the
// charge may or may not have gone through.
var ErrOutcomeUnknown = errors.New("payment outcome unknown")

var ErrNotConfigured = errors.New("Payments are not configured.")

// Charge is the provider's confirmation of a successful payment.
type Charge struct {
	ID           string
	ClientSecret string
}

// Gateway charges an amount given in minor currency units (cents).
type Gateway interface {
	Charge(ctx context.Context, amount int64, currency, description string) (Charge, error)
}

// MinorUnits converts a price with two decimal places to cents.
func MinorUnits(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

// Disabled is used when no provider key is configured.
type Disabled struct{}

func (Disabled) Charge(ctx context.Context, amount int64, currency, description string) (Charge, error) {
	return Charge{}, ErrNotConfigured
}

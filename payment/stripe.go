package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type Stripe struct {
	api *client.API
}

// NewStripe builds a client bound to secretKey instead of the package-level stripe.Key.
func NewStripe(secretKey string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api}
}

// Charge creates a card PaymentIntent; its client secret is handed back to the tenant.
func (s *Stripe) Charge(ctx context.Context, amount int64, currency, description string) (Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Description:        stripe.String(description),
	}
	params.Context = ctx

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return Charge{}, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err)
		}

		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			return Charge{}, errors.New(stripeErr.Msg)
		}
		return Charge{}, err
	}

	return Charge{ID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

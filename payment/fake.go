package payment

import (
	"context"
	"fmt"
	"sync"
)

type FakeCall struct {
	Amount      int64
	Currency    string
	Description string
}

// Fake records every charge and succeeds unless Err is set. Meant for tests.
type Fake struct {
	Err error
	// Block makes Charge wait for the context to end, simulating a provider timeout.
	Block bool

	mu    sync.Mutex
	calls []FakeCall
}

func (f *Fake) Charge(ctx context.Context, amount int64, currency, description string) (Charge, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Amount: amount, Currency: currency, Description: description})
	n := len(f.calls)
	f.mu.Unlock()

	if f.Block {
		<-ctx.Done()
		return Charge{}, fmt.Errorf("%w: %v", ErrOutcomeUnknown, ctx.Err())
	}
	if f.Err != nil {
		return Charge{}, f.Err
	}

	return Charge{
		ID:           fmt.Sprintf("pi_fake_%d", n),
		ClientSecret: fmt.Sprintf("pi_fake_%d_secret", n),
	}, nil
}

func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeCall(nil), f.calls...)
}

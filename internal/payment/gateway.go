// Package payment adapts the engine to an external payment provider. The
// engine never talks to a provider API directly: it consumes the Gateway
// port for outbound intents and feeds provider confirmations through the
// Confirmations intake.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUpstreamPayment wraps any provider-side failure. Callers match it with
// errors.Is; it is never silently absorbed.
var ErrUpstreamPayment = errors.New("upstream payment provider failure")

// Gateway is the outbound port to the payment provider.
type Gateway interface {
	// CreateDeposit registers a deposit intent and returns the provider's
	// external reference. No balance changes until the confirmation arrives.
	CreateDeposit(ctx context.Context, userID, amount int64) (string, error)
	// InitiateWithdrawal requests a payout to the user and returns the
	// provider's external reference.
	InitiateWithdrawal(ctx context.Context, userID, amount int64) (string, error)
}

// SandboxGateway is the in-process Gateway used outside production. It
// accepts every intent and mints provider-style references locally.
type SandboxGateway struct{}

// NewSandboxGateway creates a SandboxGateway.
func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{}
}

func (g *SandboxGateway) CreateDeposit(_ context.Context, userID, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: non-positive deposit amount %d for user %d", ErrUpstreamPayment, amount, userID)
	}
	return "dep_" + uuid.NewString(), nil
}

func (g *SandboxGateway) InitiateWithdrawal(_ context.Context, userID, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: non-positive payout amount %d for user %d", ErrUpstreamPayment, amount, userID)
	}
	return "wd_" + uuid.NewString(), nil
}

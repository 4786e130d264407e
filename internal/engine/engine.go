// Package engine aggregates the assembled services behind one handle. A
// transport layer (HTTP handlers, bot commands, payment webhooks) consumes
// the exported fields; the engine itself owns no transport.
package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"focus-wager-engine/internal/broadcast"
	"focus-wager-engine/internal/challenge"
	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/payment"
	"focus-wager-engine/internal/service"
)

// Engine bundles the wager challenge services.
type Engine struct {
	Registry *challenge.Registry
	Wallet   *service.WalletService
	Stats    *service.StatsService
	Payments *payment.Confirmations
	Hub      *broadcast.Hub
}

// New creates an Engine from its assembled parts.
func New(
	registry *challenge.Registry,
	wallet *service.WalletService,
	stats *service.StatsService,
	payments *payment.Confirmations,
	hub *broadcast.Hub,
) *Engine {
	return &Engine{
		Registry: registry,
		Wallet:   wallet,
		Stats:    stats,
		Payments: payments,
		Hub:      hub,
	}
}

// Run probes the store, reports readiness, and blocks until the context is
// cancelled. Timer expiry for running challenges is driven by external
// callers; the engine keeps no clock of its own.
func (e *Engine) Run(ctx context.Context) error {
	pending, err := e.Registry.ListByStatus(ctx, model.StatusPending, 100)
	if err != nil {
		return err
	}
	active, err := e.Registry.ListByStatus(ctx, model.StatusActive, 100)
	if err != nil {
		return err
	}

	log.Info().
		Int("pending_challenges", len(pending)).
		Int("active_challenges", len(active)).
		Msg("Engine ready")

	<-ctx.Done()
	return nil
}

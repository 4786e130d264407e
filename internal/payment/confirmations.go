package payment

import (
	"context"

	"github.com/rs/zerolog/log"

	"focus-wager-engine/internal/ledger"
	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/repository"
)

// Confirmations is the inbound intake for provider notifications. Providers
// deliver at-least-once and out of order; every handler leans on the
// ledger's external-reference idempotency instead of tracking delivery
// state of its own.
type Confirmations struct {
	ledger *ledger.Ledger
	users  repository.UserStore
}

// NewConfirmations creates a Confirmations intake.
func NewConfirmations(l *ledger.Ledger, users repository.UserStore) *Confirmations {
	return &Confirmations{ledger: l, users: users}
}

// OnAccountVerified ensures the user's account exists. Verification can
// arrive before the user's first deposit.
func (c *Confirmations) OnAccountVerified(ctx context.Context, userID int64) (*model.User, bool, error) {
	u, created, err := c.users.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Info().Int64("user_id", userID).Msg("Account created on provider verification")
	}
	return u, created, nil
}

// OnDepositConfirmed credits a confirmed deposit. Redeliveries return the
// originally recorded transaction with applied=false.
func (c *Confirmations) OnDepositConfirmed(ctx context.Context, userID, amount int64, externalRef string) (*model.Transaction, bool, error) {
	tx, applied, err := c.ledger.ApplyExternalDeposit(ctx, userID, amount, externalRef)
	if err != nil {
		return nil, false, err
	}
	if applied {
		log.Info().
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("external_ref", externalRef).
			Msg("Deposit confirmed")
	}
	return tx, applied, nil
}

// OnWithdrawalSettled debits a payout the provider executed on its own
// schedule, with the same idempotency rule as deposits.
func (c *Confirmations) OnWithdrawalSettled(ctx context.Context, userID, amount int64, externalRef string) (*model.Transaction, bool, error) {
	tx, applied, err := c.ledger.ApplyExternalWithdrawal(ctx, userID, amount, externalRef)
	if err != nil {
		return nil, false, err
	}
	if applied {
		log.Info().
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("external_ref", externalRef).
			Msg("Withdrawal settled")
	}
	return tx, applied, nil
}

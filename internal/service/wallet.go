// Package service contains the user-facing application services built on
// the ledger, registry, and payment ports.
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"focus-wager-engine/internal/ledger"
	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/payment"
	"focus-wager-engine/internal/repository"
)

// WalletService exposes deposit, withdrawal, and balance operations.
type WalletService struct {
	ledger  *ledger.Ledger
	users   repository.UserStore
	gateway payment.Gateway
}

// NewWalletService creates a WalletService instance.
func NewWalletService(l *ledger.Ledger, users repository.UserStore, gateway payment.Gateway) *WalletService {
	return &WalletService{ledger: l, users: users, gateway: gateway}
}

// AddFunds registers a deposit intent with the payment provider and returns
// its external reference. The balance does not change until the provider's
// confirmation arrives through the payment intake.
func (s *WalletService) AddFunds(ctx context.Context, userID, amount int64) (string, error) {
	if amount <= 0 {
		return "", ledger.ErrInvalidAmount
	}
	if _, _, err := s.users.GetOrCreate(ctx, userID); err != nil {
		return "", fmt.Errorf("ensure user %d: %w", userID, err)
	}

	ref, err := s.gateway.CreateDeposit(ctx, userID, amount)
	if err != nil {
		return "", fmt.Errorf("%w: create deposit for user %d: %w", payment.ErrUpstreamPayment, userID, err)
	}
	log.Info().Int64("user_id", userID).Int64("amount", amount).Str("external_ref", ref).
		Msg("Deposit intent created")
	return ref, nil
}

// ConfirmFunds credits a confirmed deposit, idempotently by external
// reference.
func (s *WalletService) ConfirmFunds(ctx context.Context, userID, amount int64, externalRef string) (*model.Transaction, bool, error) {
	return s.ledger.ApplyExternalDeposit(ctx, userID, amount, externalRef)
}

// Withdraw debits the user first and only then asks the provider to pay
// out. A provider failure reverses the debit with a compensating credit, so
// the balance is never short of money the user still holds.
func (s *WalletService) Withdraw(ctx context.Context, userID, amount int64) (string, error) {
	if amount <= 0 {
		return "", ledger.ErrInvalidAmount
	}

	desc := "withdrawal payout"
	if _, _, err := s.ledger.Debit(ctx, userID, amount, model.TxTypeWithdrawal, desc, ledger.Refs{}); err != nil {
		return "", err
	}

	ref, err := s.gateway.InitiateWithdrawal(ctx, userID, amount)
	if err != nil {
		reversal := "withdrawal reversal: payout failed"
		if _, _, crErr := s.ledger.Credit(ctx, userID, amount, model.TxTypeWithdrawal, reversal, ledger.Refs{}); crErr != nil {
			log.Error().Err(crErr).Int64("user_id", userID).Int64("amount", amount).
				Msg("Withdrawal reversal failed; manual reconciliation required")
		}
		return "", fmt.Errorf("%w: initiate withdrawal for user %d: %w", payment.ErrUpstreamPayment, userID, err)
	}

	log.Info().Int64("user_id", userID).Int64("amount", amount).Str("external_ref", ref).
		Msg("Withdrawal initiated")
	return ref, nil
}

// Balance returns the user's current balance.
func (s *WalletService) Balance(ctx context.Context, userID int64) (int64, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Balance, nil
}

// History returns the user's transactions, newest first.
func (s *WalletService) History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	return s.ledger.History(ctx, userID, limit)
}

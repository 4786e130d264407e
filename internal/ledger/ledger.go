// Package ledger owns all balance movement. Every credit and debit lands as
// exactly one transaction record in the same atomic step as the balance
// change, and external payment confirmations are deduplicated by their
// reference, so the signed sum of a user's transactions always equals their
// balance.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/pkg/lock"
	"focus-wager-engine/internal/repository"
)

// Ledger-level errors. Funds and not-found failures surface as the
// repository sentinels so callers match with errors.Is either way.
var (
	ErrInvalidAmount = errors.New("invalid amount: must be positive")
	ErrMissingRef    = errors.New("external reference required")
)

// Refs carries the optional references attached to a ledger entry.
type Refs struct {
	ChallengeID *string
	ExternalRef *string
}

// Ledger serializes balance mutations per user and delegates the atomic
// write to the LedgerStore.
type Ledger struct {
	store repository.LedgerStore
	users repository.UserStore
	locks *lock.KeyedLock[int64]
}

// New creates a Ledger instance.
func New(store repository.LedgerStore, users repository.UserStore, locks *lock.KeyedLock[int64]) *Ledger {
	return &Ledger{store: store, users: users, locks: locks}
}

// Credit adds amount to the user's balance and appends a transaction.
func (l *Ledger) Credit(ctx context.Context, userID int64, amount int64, txType, description string, refs Refs) (*model.User, *model.Transaction, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	return l.apply(ctx, userID, amount, txType, description, refs)
}

// Debit subtracts amount from the user's balance and appends a transaction.
// Fails with repository.ErrInsufficientFunds if the balance would go
// negative; nothing is written in that case.
func (l *Ledger) Debit(ctx context.Context, userID int64, amount int64, txType, description string, refs Refs) (*model.User, *model.Transaction, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	return l.apply(ctx, userID, -amount, txType, description, refs)
}

func (l *Ledger) apply(ctx context.Context, userID, amount int64, txType, description string, refs Refs) (*model.User, *model.Transaction, error) {
	l.locks.Lock(userID)
	defer l.locks.Unlock(userID)

	u, tx, err := l.store.Apply(ctx, repository.LedgerEntry{
		UserID:      userID,
		Amount:      amount,
		Type:        txType,
		Description: &description,
		ChallengeID: refs.ChallengeID,
		ExternalRef: refs.ExternalRef,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ledger apply for user %d: %w", userID, err)
	}
	return u, tx, nil
}

// ApplyExternalDeposit credits a confirmed deposit. Idempotent: if the
// external reference was already applied, the recorded transaction is
// returned and the balance is untouched, regardless of how many times the
// gateway re-delivers the confirmation.
func (l *Ledger) ApplyExternalDeposit(ctx context.Context, userID, amount int64, externalRef string) (*model.Transaction, bool, error) {
	if amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	if externalRef == "" {
		return nil, false, ErrMissingRef
	}

	// Deposits create the account lazily.
	if _, _, err := l.users.GetOrCreate(ctx, userID); err != nil {
		return nil, false, fmt.Errorf("ensure user %d: %w", userID, err)
	}

	desc := "external deposit"
	_, tx, err := l.apply(ctx, userID, amount, model.TxTypeDeposit, desc, Refs{ExternalRef: &externalRef})
	if err == nil {
		return tx, true, nil
	}
	if errors.Is(err, repository.ErrDuplicateRef) {
		recorded, findErr := l.store.FindByExternalRef(ctx, externalRef)
		if findErr != nil {
			return nil, false, fmt.Errorf("lookup duplicate ref %q: %w", externalRef, findErr)
		}
		log.Debug().Int64("user_id", userID).Str("external_ref", externalRef).
			Msg("Duplicate deposit confirmation ignored")
		return recorded, false, nil
	}
	return nil, false, err
}

// ApplyExternalWithdrawal debits a settled withdrawal, with the same
// idempotency rule as deposits.
func (l *Ledger) ApplyExternalWithdrawal(ctx context.Context, userID, amount int64, externalRef string) (*model.Transaction, bool, error) {
	if amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	if externalRef == "" {
		return nil, false, ErrMissingRef
	}

	desc := "external withdrawal"
	_, tx, err := l.apply(ctx, userID, -amount, model.TxTypeWithdrawal, desc, Refs{ExternalRef: &externalRef})
	if err == nil {
		return tx, true, nil
	}
	if errors.Is(err, repository.ErrDuplicateRef) {
		recorded, findErr := l.store.FindByExternalRef(ctx, externalRef)
		if findErr != nil {
			return nil, false, fmt.Errorf("lookup duplicate ref %q: %w", externalRef, findErr)
		}
		return recorded, false, nil
	}
	return nil, false, err
}

// Reconcile compares a user's balance with the signed sum of their
// transaction log. A mismatch means a partial write slipped through and
// needs manual attention.
func (l *Ledger) Reconcile(ctx context.Context, userID int64) (balance, sum int64, ok bool, err error) {
	u, err := l.users.GetByID(ctx, userID)
	if err != nil {
		return 0, 0, false, err
	}
	sum, err = l.store.SumByUser(ctx, userID)
	if err != nil {
		return 0, 0, false, err
	}
	return u.Balance, sum, u.Balance == sum, nil
}

// History returns a user's transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	return l.store.ListByUser(ctx, userID, limit)
}

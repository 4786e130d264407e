// Package repository defines the storage-agnostic contracts the engine
// depends on. Implementations live in the postgres and memory subpackages;
// the engine only ever sees these interfaces, so the backing store can be
// swapped without touching challenge or ledger logic.
package repository

import (
	"context"
	"errors"

	"focus-wager-engine/internal/model"
)

// Common errors for repository operations.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrTxNotFound        = errors.New("transaction not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateRef      = errors.New("duplicate external reference")
	ErrDuplicateID       = errors.New("duplicate id")
)

// LedgerEntry describes one balance-affecting write. Amount is signed: a
// credit is positive, a debit negative.
type LedgerEntry struct {
	UserID      int64
	Amount      int64
	Type        string
	Description *string
	ChallengeID *string
	ExternalRef *string
}

// UserStore persists user accounts and their aggregate stats.
type UserStore interface {
	// GetOrCreate returns the user, lazily creating the account with a zero
	// balance on first interaction. The second result reports creation.
	GetOrCreate(ctx context.Context, userID int64) (*model.User, bool, error)
	GetByID(ctx context.Context, userID int64) (*model.User, error)
	// UpdateStats applies a stats delta in a single write, including the
	// streak reset/increment and bestStreak=max rule.
	UpdateStats(ctx context.Context, userID int64, delta model.StatsDelta) (*model.User, error)
	TopByMoneyWon(ctx context.Context, limit int) ([]*model.User, error)
	TopByStreak(ctx context.Context, limit int) ([]*model.User, error)
	TopByWins(ctx context.Context, limit int) ([]*model.User, error)
}

// ChallengeStore persists challenges and their rosters.
type ChallengeStore interface {
	// Insert stores a new challenge together with its creator's player row.
	// Returns ErrDuplicateID if the generated code collides.
	Insert(ctx context.Context, ch *model.Challenge, creator *model.Player) error
	GetByID(ctx context.Context, id string) (*model.Challenge, error)
	GetPlayers(ctx context.Context, id string) ([]*model.Player, error)
	AddPlayer(ctx context.Context, p *model.Player) error
	UpdatePlayer(ctx context.Context, p *model.Player) error
	UpdateChallenge(ctx context.Context, ch *model.Challenge) error
	ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Challenge, error)
}

// LedgerStore owns balance mutation. Apply performs the balance change and
// the transaction append in one atomic step: either both persist or neither
// does. A debit that would take the balance negative fails with
// ErrInsufficientFunds and leaves no trace. An entry whose ExternalRef is
// already recorded fails with ErrDuplicateRef, again with no balance change.
type LedgerStore interface {
	Apply(ctx context.Context, entry LedgerEntry) (*model.User, *model.Transaction, error)
	FindByExternalRef(ctx context.Context, externalRef string) (*model.Transaction, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error)
	// SumByUser returns the signed sum of a user's transactions, used for
	// ledger-balance reconciliation.
	SumByUser(ctx context.Context, userID int64) (int64, error)
}

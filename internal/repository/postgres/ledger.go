package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/repository"
)

const txColumns = `id, user_id, type, amount, description, challenge_id, external_ref, created_at`

// LedgerStore handles balance mutation and the append-only transaction log.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ repository.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a new LedgerStore instance.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

func scanTx(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Type,
		&tx.Amount,
		&tx.Description,
		&tx.ChallengeID,
		&tx.ExternalRef,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// Apply mutates the balance and appends the transaction record inside one
// database transaction: either both persist or neither does. The balance
// guard is in the WHERE clause, so a debit past zero updates no row and the
// whole step rolls back. A replayed external_ref fails with ErrDuplicateRef
// before the balance is touched, so redeliveries report the duplicate even
// when the balance no longer covers the amount; the unique index on the
// insert backstops the race between two first deliveries.
func (r *LedgerStore) Apply(ctx context.Context, entry repository.LedgerEntry) (*model.User, *model.Transaction, error) {
	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin ledger apply: %w", err)
	}
	defer dbTx.Rollback(ctx)

	if entry.ExternalRef != nil {
		var seen bool
		err := dbTx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM transactions WHERE external_ref = $1)`, *entry.ExternalRef,
		).Scan(&seen)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check external ref: %w", err)
		}
		if seen {
			return nil, nil, repository.ErrDuplicateRef
		}
	}

	update := `
		UPDATE users
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING ` + userColumns

	u, err := scanUser(dbTx.QueryRow(ctx, update, entry.UserID, entry.Amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, r.classifyBalanceFailure(ctx, entry.UserID)
		}
		return nil, nil, fmt.Errorf("failed to update balance: %w", err)
	}

	insert := `
		INSERT INTO transactions (user_id, type, amount, description, challenge_id, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING ` + txColumns

	tx, err := scanTx(dbTx.QueryRow(ctx, insert,
		entry.UserID, entry.Type, entry.Amount, entry.Description, entry.ChallengeID, entry.ExternalRef,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, repository.ErrDuplicateRef
		}
		return nil, nil, fmt.Errorf("failed to append transaction: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit ledger apply: %w", err)
	}
	return u, tx, nil
}

// classifyBalanceFailure distinguishes a missing account from an overdraw
// after the guarded UPDATE matched no row.
func (r *LedgerStore) classifyBalanceFailure(ctx context.Context, userID int64) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to classify balance failure: %w", err)
	}
	if !exists {
		return repository.ErrUserNotFound
	}
	return repository.ErrInsufficientFunds
}

// FindByExternalRef retrieves the transaction recorded for an external
// payment reference. Returns ErrTxNotFound if no such reference exists.
func (r *LedgerStore) FindByExternalRef(ctx context.Context, externalRef string) (*model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE external_ref = $1`

	tx, err := scanTx(r.pool.QueryRow(ctx, query, externalRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrTxNotFound
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return tx, nil
}

// ListByUser retrieves a user's transactions, newest first.
func (r *LedgerStore) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

// SumByUser returns the signed sum of a user's transactions for
// ledger-balance reconciliation.
func (r *LedgerStore) SumByUser(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1`, userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

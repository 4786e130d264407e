// Package postgres provides pgx-backed implementations of the repository
// contracts.
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

const userColumns = `id, balance, total_sessions, total_wins, total_focus_minutes,
	money_won, money_lost, current_streak, best_streak, created_at, updated_at`

// UserStore handles user persistence.
type UserStore struct {
	pool *pgxpool.Pool
}

var _ repository.UserStore = (*UserStore)(nil)

// NewUserStore creates a new UserStore instance.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Balance,
		&u.TotalSessions,
		&u.TotalWins,
		&u.TotalFocusMinutes,
		&u.MoneyWon,
		&u.MoneyLost,
		&u.CurrentStreak,
		&u.BestStreak,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetOrCreate retrieves a user, lazily creating the account with a zero
// balance on first interaction. The second result reports creation.
func (r *UserStore) GetOrCreate(ctx context.Context, userID int64) (*model.User, bool, error) {
	insert := `
		INSERT INTO users (id, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + userColumns

	u, err := scanUser(r.pool.QueryRow(ctx, insert, userID))
	if err == nil {
		return u, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	// Conflict: the account already exists.
	u, err = r.GetByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return u, false, nil
}

// GetByID retrieves a user by id. Returns ErrUserNotFound if absent.
func (r *UserStore) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := scanUser(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// UpdateStats applies a stats delta in a single UPDATE. The streak rules
// (reset, then increment, then bestStreak = max) are evaluated against the
// pre-update row so the whole delta is one atomic write.
func (r *UserStore) UpdateStats(ctx context.Context, userID int64, delta model.StatsDelta) (*model.User, error) {
	query := `
		UPDATE users SET
			total_sessions = total_sessions + $2,
			total_wins = total_wins + $3,
			total_focus_minutes = total_focus_minutes + $4,
			money_won = money_won + $5,
			money_lost = money_lost + $6,
			current_streak = (CASE WHEN $7::bool THEN 0 ELSE current_streak END)
				+ (CASE WHEN $8::bool THEN 1 ELSE 0 END),
			best_streak = GREATEST(best_streak,
				(CASE WHEN $7::bool THEN 0 ELSE current_streak END)
				+ (CASE WHEN $8::bool THEN 1 ELSE 0 END)),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	u, err := scanUser(r.pool.QueryRow(ctx, query, userID,
		delta.Sessions, delta.Wins, delta.FocusMinutes,
		delta.MoneyWon, delta.MoneyLost,
		delta.StreakReset, delta.StreakIncrement,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update stats: %w", err)
	}
	return u, nil
}

func (r *UserStore) topBy(ctx context.Context, orderBy string, limit int) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY ` + orderBy + ` DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// TopByMoneyWon retrieves the top N users by lifetime winnings.
func (r *UserStore) TopByMoneyWon(ctx context.Context, limit int) ([]*model.User, error) {
	return r.topBy(ctx, "money_won", limit)
}

// TopByStreak retrieves the top N users by best streak.
func (r *UserStore) TopByStreak(ctx context.Context, limit int) ([]*model.User, error) {
	return r.topBy(ctx, "best_streak", limit)
}

// TopByWins retrieves the top N users by total wins.
func (r *UserStore) TopByWins(ctx context.Context, limit int) ([]*model.User, error) {
	return r.topBy(ctx, "total_wins", limit)
}

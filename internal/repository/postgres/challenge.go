package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/repository"
)

const challengeColumns = `id, mode, stake_amount, duration_minutes, max_players,
	status, winner_id, created_at, started_at, ended_at`

const playerColumns = `challenge_id, user_id, user_name, paid, ready, failed,
	failed_at, completed, joined_at`

// ChallengeStore handles challenge and roster persistence.
type ChallengeStore struct {
	pool *pgxpool.Pool
}

var _ repository.ChallengeStore = (*ChallengeStore)(nil)

// NewChallengeStore creates a new ChallengeStore instance.
func NewChallengeStore(pool *pgxpool.Pool) *ChallengeStore {
	return &ChallengeStore{pool: pool}
}

func scanChallenge(row pgx.Row) (*model.Challenge, error) {
	var ch model.Challenge
	err := row.Scan(
		&ch.ID,
		&ch.Mode,
		&ch.StakeAmount,
		&ch.DurationMinutes,
		&ch.MaxPlayers,
		&ch.Status,
		&ch.WinnerID,
		&ch.CreatedAt,
		&ch.StartedAt,
		&ch.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func scanPlayer(row pgx.Row) (*model.Player, error) {
	var p model.Player
	err := row.Scan(
		&p.ChallengeID,
		&p.UserID,
		&p.UserName,
		&p.Paid,
		&p.Ready,
		&p.Failed,
		&p.FailedAt,
		&p.Completed,
		&p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Insert stores a new challenge together with its creator's player row in
// one database transaction. Returns ErrDuplicateID on a code collision so
// the registry can regenerate.
func (r *ChallengeStore) Insert(ctx context.Context, ch *model.Challenge, creator *model.Player) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO challenges (id, mode, stake_amount, duration_minutes, max_players,
			status, winner_id, created_at, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		ch.ID, ch.Mode, ch.StakeAmount, ch.DurationMinutes, ch.MaxPlayers,
		ch.Status, ch.WinnerID, ch.CreatedAt, ch.StartedAt, ch.EndedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateID
		}
		return fmt.Errorf("failed to insert challenge: %w", err)
	}

	if err := insertPlayer(ctx, tx, creator); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	return nil
}

func insertPlayer(ctx context.Context, tx pgx.Tx, p *model.Player) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO players (challenge_id, user_id, user_name, paid, ready, failed,
			failed_at, completed, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ChallengeID, p.UserID, p.UserName, p.Paid, p.Ready, p.Failed,
		p.FailedAt, p.Completed, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}
	return nil
}

// GetByID retrieves a challenge. Returns ErrChallengeNotFound if absent.
func (r *ChallengeStore) GetByID(ctx context.Context, id string) (*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`

	ch, err := scanChallenge(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return ch, nil
}

// GetPlayers retrieves the full roster ordered by join time.
func (r *ChallengeStore) GetPlayers(ctx context.Context, id string) ([]*model.Player, error) {
	query := `SELECT ` + playerColumns + ` FROM players WHERE challenge_id = $1 ORDER BY joined_at`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query players: %w", err)
	}
	defer rows.Close()

	var players []*model.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		players = append(players, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating players: %w", err)
	}
	return players, nil
}

// AddPlayer inserts a roster row for an existing challenge.
func (r *ChallengeStore) AddPlayer(ctx context.Context, p *model.Player) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO players (challenge_id, user_id, user_name, paid, ready, failed,
			failed_at, completed, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ChallengeID, p.UserID, p.UserName, p.Paid, p.Ready, p.Failed,
		p.FailedAt, p.Completed, p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add player: %w", err)
	}
	return nil
}

// UpdatePlayer persists a player's flags.
func (r *ChallengeStore) UpdatePlayer(ctx context.Context, p *model.Player) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE players
		SET user_name = $3, paid = $4, ready = $5, failed = $6, failed_at = $7, completed = $8
		WHERE challenge_id = $1 AND user_id = $2`,
		p.ChallengeID, p.UserID, p.UserName, p.Paid, p.Ready, p.Failed, p.FailedAt, p.Completed,
	)
	if err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrPlayerNotFound
	}
	return nil
}

// UpdateChallenge persists challenge lifecycle fields.
func (r *ChallengeStore) UpdateChallenge(ctx context.Context, ch *model.Challenge) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE challenges
		SET status = $2, winner_id = $3, started_at = $4, ended_at = $5
		WHERE id = $1`,
		ch.ID, ch.Status, ch.WinnerID, ch.StartedAt, ch.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update challenge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrChallengeNotFound
	}
	return nil
}

// ListByStatus retrieves challenges in a lifecycle state, oldest first.
func (r *ChallengeStore) ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Challenge, error) {
	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE status = $1 ORDER BY created_at LIMIT $2`

	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*model.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}
	return challenges, nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

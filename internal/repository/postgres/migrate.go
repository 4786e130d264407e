package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Migrate applies the engine schema. Statements are idempotent so repeated
// startup runs are safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "users table",
			sql: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGINT PRIMARY KEY,
					balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
					total_sessions INT NOT NULL DEFAULT 0,
					total_wins INT NOT NULL DEFAULT 0,
					total_focus_minutes INT NOT NULL DEFAULT 0,
					money_won BIGINT NOT NULL DEFAULT 0,
					money_lost BIGINT NOT NULL DEFAULT 0,
					current_streak INT NOT NULL DEFAULT 0,
					best_streak INT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_users_money_won ON users(money_won DESC);
			`,
		},
		{
			name: "challenges table",
			sql: `
				CREATE TABLE IF NOT EXISTS challenges (
					id VARCHAR(16) PRIMARY KEY,
					mode VARCHAR(10) NOT NULL,
					stake_amount BIGINT NOT NULL CHECK (stake_amount > 0),
					duration_minutes INT,
					max_players INT NOT NULL,
					status VARCHAR(10) NOT NULL,
					winner_id VARCHAR(32),
					created_at TIMESTAMPTZ NOT NULL,
					started_at TIMESTAMPTZ,
					ended_at TIMESTAMPTZ
				);
				CREATE INDEX IF NOT EXISTS idx_challenges_status ON challenges(status, created_at);
			`,
		},
		{
			name: "players table",
			sql: `
				CREATE TABLE IF NOT EXISTS players (
					challenge_id VARCHAR(16) NOT NULL REFERENCES challenges(id),
					user_id BIGINT NOT NULL REFERENCES users(id),
					user_name VARCHAR(255) NOT NULL,
					paid BOOLEAN NOT NULL DEFAULT FALSE,
					ready BOOLEAN NOT NULL DEFAULT FALSE,
					failed BOOLEAN NOT NULL DEFAULT FALSE,
					failed_at TIMESTAMPTZ,
					completed BOOLEAN NOT NULL DEFAULT FALSE,
					joined_at TIMESTAMPTZ NOT NULL,
					PRIMARY KEY (challenge_id, user_id)
				);
			`,
		},
		{
			name: "transactions table",
			sql: `
				CREATE TABLE IF NOT EXISTS transactions (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id),
					type VARCHAR(20) NOT NULL,
					amount BIGINT NOT NULL,
					description TEXT,
					challenge_id VARCHAR(16),
					external_ref VARCHAR(128),
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_external_ref
					ON transactions(external_ref) WHERE external_ref IS NOT NULL;
			`,
		},
	}

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %q failed: %w", m.name, err)
		}
		log.Info().Str("migration", m.name).Msg("Migration applied")
	}
	return nil
}

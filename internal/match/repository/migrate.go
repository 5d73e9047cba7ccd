package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS coinflip_sessions (
	id               UUID PRIMARY KEY,
	external_game_id TEXT NOT NULL UNIQUE,
	chat_id          BIGINT NOT NULL,
	initiator_id     BIGINT NOT NULL,
	initiator_name   TEXT NOT NULL DEFAULT '',
	opponent_id      BIGINT,
	opponent_name    TEXT,
	bet_amount       BIGINT NOT NULL,
	status           TEXT NOT NULL,
	game_state       JSONB,
	claimed_by       TEXT,
	claimed_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_coinflip_sessions_pending
	ON coinflip_sessions (created_at)
	WHERE status = 'pending_pickup';
`

// EnsureSchema creates the sessions table if it does not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

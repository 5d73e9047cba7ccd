// Package repository is the durable Store for coinflip sessions: a Postgres
// table holding one row per session from creation through its terminal
// status. The pickup claim is a single conditional UPDATE, so duplicate
// pickup notifications are safe no-ops.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"

	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// PickupChannel is the Postgres NOTIFY channel carrying external game IDs of
// freshly created pending sessions.
const PickupChannel = "coinflip_pickup"

// Repository implements the Store against a pgx pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository on an existing pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateSessionRequest holds the fields of a new pending session.
type CreateSessionRequest struct {
	ID             uuid.UUID `json:"id"`
	ExternalGameID string    `json:"external_game_id"`
	ChatID         int64     `json:"chat_id"`
	InitiatorID    int64     `json:"initiator_id"`
	InitiatorName  string    `json:"initiator_name"`
	OpponentID     *int64    `json:"opponent_id,omitempty"`
	OpponentName   string    `json:"opponent_name,omitempty"`
	BetAmount      int64     `json:"bet_amount"`
}

// CreatePending inserts a pending_pickup row and notifies the pickup channel
// in the same transaction, so the notification is only ever seen for a
// committed row.
func (r *Repository) CreatePending(ctx context.Context, req CreateSessionRequest) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO coinflip_sessions
			(id, external_game_id, chat_id, initiator_id, initiator_name,
			 opponent_id, opponent_name, bet_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		req.ID, req.ExternalGameID, req.ChatID, req.InitiatorID, req.InitiatorName,
		req.OpponentID, nullableName(req.OpponentName), req.BetAmount, models.StatusPendingPickup,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, PickupChannel, req.ExternalGameID); err != nil {
		return fmt.Errorf("failed to notify pickup channel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// ClaimPending atomically claims the pending session for externalGameID,
// moving it to in_progress. Returns (nil, nil) when no pending row matches —
// the id is unknown or another claimer already won.
func (r *Repository) ClaimPending(ctx context.Context, externalGameID, claimedBy string) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE coinflip_sessions
		SET status = $2, claimed_by = $3, claimed_at = now()
		WHERE external_game_id = $1 AND status = $4
		RETURNING id, external_game_id, chat_id, initiator_id, initiator_name,
			opponent_id, opponent_name, bet_amount, claimed_at`,
		externalGameID, models.StatusInProgress, claimedBy, models.StatusPendingPickup,
	)

	var (
		sess         models.Session
		opponentName *string
	)
	err := row.Scan(
		&sess.ID, &sess.ExternalGameID, &sess.ChatID, &sess.InitiatorID, &sess.Game.InitiatorName,
		&sess.OpponentID, &opponentName, &sess.BetAmount, &sess.ClaimedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim pending session: %w", err)
	}

	sess.Status = models.StatusInProgress
	if opponentName != nil {
		sess.Game.OpponentName = *opponentName
	}
	return &sess, nil
}

// Persist writes the terminal status and game snapshot for a session. It is
// the only writer of terminal statuses; the settlement process reads the row
// after the fact.
func (r *Repository) Persist(ctx context.Context, id uuid.UUID, status models.SessionStatus, snapshot []byte) error {
	snap := pqtype.NullRawMessage{RawMessage: snapshot, Valid: len(snapshot) > 0}

	tag, err := r.pool.Exec(ctx, `
		UPDATE coinflip_sessions
		SET status = $2, game_state = $3, completed_at = now()
		WHERE id = $1`,
		id, status, snap,
	)
	if err != nil {
		return fmt.Errorf("failed to persist session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// FetchOverduePending lists external game IDs whose pickup notification may
// have been missed: rows still pending after olderThan.
func (r *Repository) FetchOverduePending(ctx context.Context, olderThan time.Duration, limit int32) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT external_game_id
		FROM coinflip_sessions
		WHERE status = $1 AND created_at < now() - $2::interval
		ORDER BY created_at
		LIMIT $3`,
		models.StatusPendingPickup, olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch overdue pending sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan pending session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableName(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package engine

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/events"
	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// finalize commits the one terminal outcome of a session: persist the status
// and snapshot, evict the session from the registry, then emit the
// settlement event. Callers hold the session lock. A second call for the
// same session is a no-op because the registry entry is already gone.
//
// A persist failure is logged as critical but still evicts the session — a
// stuck registry entry would block the id forever, while the durable row
// stays in its last-written state for reconciliation.
func (e *Engine) finalize(ctx context.Context, sess *models.Session, out models.Outcome) {
	e.timers.Cancel(sess.ID)

	if !e.registry.Contains(sess.ID) {
		return
	}

	sess.Status = out.Status
	sess.Phase = models.PhaseTerminal
	if out.Winner != "" {
		sess.Game.Winner = out.Winner
	}

	snapshot, err := json.Marshal(sess.Game)
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to marshal game snapshot")
		snapshot = nil
	}

	if err := e.store.Persist(ctx, sess.ID, out.Status, snapshot); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sess.ID.String()).
			Str("status", string(out.Status)).
			Msg("CRITICAL: failed to persist terminal status; evicting session anyway")
	}

	if !e.registry.Remove(sess.ID) {
		return
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("status", string(out.Status)).
		Str("winner", out.Winner).
		Msg("session finalized")

	e.publishSettled(ctx, sess, out)
}

// publishSettled emits the settlement event. Publish failure never undoes a
// finalize; the durable status row remains the source of truth.
func (e *Engine) publishSettled(ctx context.Context, sess *models.Session, out models.Outcome) {
	payload := events.SessionSettledPayload{
		SessionID:      sess.ID.String(),
		ExternalGameID: sess.ExternalGameID,
		ChatID:         sess.ChatID,
		InitiatorID:    sess.InitiatorID,
		OpponentID:     sess.OpponentID,
		BetAmount:      sess.BetAmount,
		Status:         string(out.Status),
		Winner:         out.Winner,
		SettledAt:      e.clock.Now().UTC(),
	}
	if err := e.sink.PublishSettled(ctx, payload); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sess.ID.String()).
			Msg("failed to publish settlement event")
	}
}

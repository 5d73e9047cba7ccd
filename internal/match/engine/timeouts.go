package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// Timeout callbacks run on timer goroutines. Each one re-fetches the session,
// takes the lock, and re-verifies both registry membership and the phase it
// was armed for: a callback that fired just before an action cancelled it
// must observe the session has moved on and do nothing. Phases never repeat,
// so the phase check is a sound staleness guard.

func (e *Engine) onOfferTimeout(id uuid.UUID) {
	ctx := context.Background()
	sess, ok := e.registry.Get(id)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if !e.registry.Contains(id) {
		return
	}
	if sess.Phase != models.PhaseOfferUnified && sess.Phase != models.PhaseOfferDirect {
		return
	}

	log.Info().Str("session_id", id.String()).Msg("offer expired")

	if err := e.updateSurface(ctx, sess, Content{Kind: ContentTimeout, Data: e.offerData(sess)}, nil); err != nil {
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return
	}
	e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedTimeout})
}

// onChoiceTimeout forfeits a PvB game the initiator never played: the bot
// wins by default.
func (e *Engine) onChoiceTimeout(id uuid.UUID) {
	ctx := context.Background()
	sess, ok := e.registry.Get(id)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if !e.registry.Contains(id) {
		return
	}
	if sess.Phase != models.PhaseAwaitingPvBChoice {
		return
	}

	log.Info().Str("session_id", id.String()).Msg("choice timed out, bot wins by forfeit")

	out := models.Outcome{Status: models.StatusCompletedBotWin, Winner: models.WinnerBot}
	sess.Game.Winner = out.Winner

	data := e.offerData(sess)
	data["winner"] = out.Winner
	if err := e.updateSurface(ctx, sess, Content{Kind: ContentResult, Data: data}, nil); err != nil {
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return
	}
	e.finalize(ctx, sess, out)
}

// onCallTimeout forfeits a PvP game the caller never called: the non-caller
// wins by default, not by a coin toss.
func (e *Engine) onCallTimeout(id uuid.UUID) {
	ctx := context.Background()
	sess, ok := e.registry.Get(id)
	if !ok {
		return
	}
	sess.Lock()
	defer sess.Unlock()
	if !e.registry.Contains(id) {
		return
	}
	if sess.Phase != models.PhaseAwaitingPvPCall {
		return
	}

	callerIsInitiator := sess.Game.CallerID != nil && *sess.Game.CallerID == sess.InitiatorID
	var out models.Outcome
	if callerIsInitiator {
		var opponentID int64
		if sess.OpponentID != nil {
			opponentID = *sess.OpponentID
		}
		out = models.Outcome{
			Status: models.StatusCompletedP2Win,
			Winner: playerLabel(opponentID, sess.Game.OpponentName),
		}
	} else {
		out = models.Outcome{
			Status: models.StatusCompletedP1Win,
			Winner: playerLabel(sess.InitiatorID, sess.Game.InitiatorName),
		}
	}
	sess.Game.Winner = out.Winner

	log.Info().
		Str("session_id", id.String()).
		Str("winner", out.Winner).
		Msg("call timed out, non-caller wins by forfeit")

	data := e.offerData(sess)
	data["winner"] = out.Winner
	if err := e.updateSurface(ctx, sess, Content{Kind: ContentResult, Data: data}, nil); err != nil {
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return
	}
	e.finalize(ctx, sess, out)
}

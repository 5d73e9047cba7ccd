package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// resolve commits the session to resolution: the reveal animation runs, one
// independent flip decides the landed side, and the outcome is finalized.
// Once entered, no user action can stop it.
func (e *Engine) resolve(ctx context.Context, sess *models.Session, choice models.Side, pvb bool) {
	sess.Phase = models.PhaseResolving
	sess.Game.Choice = choice

	if err := e.runAnimation(ctx, sess); err != nil {
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return
	}

	landed := e.rng.FlipCoin()
	sess.Game.LandedSide = landed
	actorWins := landed == choice

	out := e.outcomeFor(sess, actorWins, pvb)
	sess.Game.Winner = out.Winner

	data := e.offerData(sess)
	data["choice"] = string(choice)
	data["landed_side"] = string(landed)
	data["winner"] = out.Winner
	if err := e.updateSurface(ctx, sess, Content{Kind: ContentResult, Data: data}, nil); err != nil {
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("choice", string(choice)).
		Str("landed_side", string(landed)).
		Str("winner", out.Winner).
		Msg("flip resolved")

	e.finalize(ctx, sess, out)
}

// outcomeFor maps the flip result to a terminal outcome. In PvB the acting
// player is the initiator; in PvP it is the designated caller, and the other
// player wins when the call misses.
func (e *Engine) outcomeFor(sess *models.Session, actorWins, pvb bool) models.Outcome {
	if pvb {
		if actorWins {
			return models.Outcome{
				Status: models.StatusCompletedP1Win,
				Winner: playerLabel(sess.InitiatorID, sess.Game.InitiatorName),
			}
		}
		return models.Outcome{
			Status: models.StatusCompletedBotWin,
			Winner: models.WinnerBot,
		}
	}

	callerIsInitiator := sess.Game.CallerID != nil && *sess.Game.CallerID == sess.InitiatorID
	winnerIsInitiator := actorWins == callerIsInitiator
	if winnerIsInitiator {
		return models.Outcome{
			Status: models.StatusCompletedP1Win,
			Winner: playerLabel(sess.InitiatorID, sess.Game.InitiatorName),
		}
	}
	var opponentID int64
	if sess.OpponentID != nil {
		opponentID = *sess.OpponentID
	}
	return models.Outcome{
		Status: models.StatusCompletedP2Win,
		Winner: playerLabel(opponentID, sess.Game.OpponentName),
	}
}

// runAnimation plays the ordered flip frames. It carries no decision content;
// a presenter error other than ErrContentUnchanged aborts it.
func (e *Engine) runAnimation(ctx context.Context, sess *models.Session) error {
	for i := 0; i < e.timings.AnimationSteps; i++ {
		content := Content{Kind: ContentFlipFrame, Data: map[string]any{
			"frame":        i,
			"total_frames": e.timings.AnimationSteps,
		}}
		if err := e.presenter.Update(ctx, sess.Game.MessageRef, content, nil); err != nil {
			if errors.Is(err, ErrContentUnchanged) {
				continue
			}
			log.Error().
				Err(err).
				Str("session_id", sess.ID.String()).
				Int("frame", i).
				Msg("animation aborted")
			return err
		}
		if e.timings.AnimationStepDelay > 0 {
			e.clock.Sleep(e.timings.AnimationStepDelay)
		}
	}
	return nil
}

// updateSurface edits the session's message, treating "content unchanged" as
// success.
func (e *Engine) updateSurface(ctx context.Context, sess *models.Session, content Content, actions []ActionSpec) error {
	err := e.presenter.Update(ctx, sess.Game.MessageRef, content, actions)
	if err != nil && !errors.Is(err, ErrContentUnchanged) {
		log.Error().
			Err(err).
			Str("session_id", sess.ID.String()).
			Str("kind", content.Kind).
			Msg("failed to update surface")
		return err
	}
	return nil
}

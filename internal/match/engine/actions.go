package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// HandleAction processes one inbound player click. The handler acquires the
// session lock, re-verifies registry membership (the action may have lost a
// race against a timeout or another action), and cancels the pending phase
// timer before evaluating anything — a timeout callback can then no longer
// begin after this point.
func (e *Engine) HandleAction(ctx context.Context, ev ActionEvent) {
	sess, ok := e.registry.Get(ev.SessionID)
	if !ok {
		e.ack(ctx, ev.ActorID, "this game is no longer active")
		return
	}

	sess.Lock()
	defer sess.Unlock()

	if !e.registry.Contains(ev.SessionID) {
		// Lost the race: the session was finalized between lookup and lock.
		e.ack(ctx, ev.ActorID, "this game is no longer active")
		return
	}

	e.timers.Cancel(sess.ID)

	switch sess.Phase {
	case models.PhaseOfferUnified:
		e.handleUnifiedOffer(ctx, sess, ev)
	case models.PhaseOfferDirect:
		e.handleDirectOffer(ctx, sess, ev)
	case models.PhaseAwaitingPvBChoice:
		e.handleChoice(ctx, sess, ev)
	case models.PhaseAwaitingPvPCall:
		e.handleCall(ctx, sess, ev)
	default:
		e.ack(ctx, ev.ActorID, "this game is already resolving")
	}
}

func (e *Engine) handleUnifiedOffer(ctx context.Context, sess *models.Session, ev ActionEvent) {
	switch ev.Action {
	case ActionAcceptBot:
		if ev.ActorID != sess.InitiatorID {
			e.reject(ctx, sess, ev, "only the initiator can play the bot")
			return
		}
		e.enterChoicePhase(ctx, sess)

	case ActionAcceptPvP:
		if ev.ActorID == sess.InitiatorID {
			e.reject(ctx, sess, ev, "you cannot accept your own offer")
			return
		}
		opponent := ev.ActorID
		sess.OpponentID = &opponent
		sess.Game.OpponentName = ev.ActorName
		e.enterCallPhase(ctx, sess)

	case ActionCancel:
		if ev.ActorID != sess.InitiatorID {
			e.reject(ctx, sess, ev, "only the initiator can cancel")
			return
		}
		e.cancelSession(ctx, sess)

	default:
		e.reject(ctx, sess, ev, "that action is not available")
	}
}

func (e *Engine) handleDirectOffer(ctx context.Context, sess *models.Session, ev ActionEvent) {
	switch ev.Action {
	case ActionAccept:
		if sess.OpponentID == nil || ev.ActorID != *sess.OpponentID {
			e.reject(ctx, sess, ev, "this challenge is not addressed to you")
			return
		}
		if sess.Game.OpponentName == "" {
			sess.Game.OpponentName = ev.ActorName
		}
		e.enterCallPhase(ctx, sess)

	case ActionDecline:
		if sess.OpponentID == nil || ev.ActorID != *sess.OpponentID {
			e.reject(ctx, sess, ev, "this challenge is not addressed to you")
			return
		}
		e.cancelSession(ctx, sess)

	case ActionCancel:
		if ev.ActorID != sess.InitiatorID {
			e.reject(ctx, sess, ev, "only the initiator can cancel")
			return
		}
		e.cancelSession(ctx, sess)

	default:
		e.reject(ctx, sess, ev, "that action is not available")
	}
}

func (e *Engine) handleChoice(ctx context.Context, sess *models.Session, ev ActionEvent) {
	if ev.Action != ActionChoose {
		e.reject(ctx, sess, ev, "that action is not available")
		return
	}
	if ev.ActorID != sess.InitiatorID {
		e.reject(ctx, sess, ev, "only the initiator picks a side")
		return
	}
	side, ok := parseSide(ev.Param)
	if !ok {
		e.reject(ctx, sess, ev, "pick heads or tails")
		return
	}
	e.resolve(ctx, sess, side, true)
}

func (e *Engine) handleCall(ctx context.Context, sess *models.Session, ev ActionEvent) {
	if ev.Action != ActionCall {
		e.reject(ctx, sess, ev, "that action is not available")
		return
	}
	if sess.Game.CallerID == nil || ev.ActorID != *sess.Game.CallerID {
		e.reject(ctx, sess, ev, "it is not your call")
		return
	}
	side, ok := parseSide(ev.Param)
	if !ok {
		e.reject(ctx, sess, ev, "call heads or tails")
		return
	}
	e.resolve(ctx, sess, side, false)
}

// enterChoicePhase presents heads/tails to the initiator for a PvB game.
func (e *Engine) enterChoicePhase(ctx context.Context, sess *models.Session) {
	sess.Phase = models.PhaseAwaitingPvBChoice

	content := Content{Kind: ContentChoice, Data: e.offerData(sess)}
	actions := []ActionSpec{
		{Name: ActionChoose, ActorID: sess.InitiatorID, Param: string(models.SideHeads)},
		{Name: ActionChoose, ActorID: sess.InitiatorID, Param: string(models.SideTails)},
	}
	if err := e.updateSurface(ctx, sess, content, actions); err != nil {
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return
	}
	e.armPhaseTimer(sess)

	log.Info().
		Str("session_id", sess.ID.String()).
		Msg("awaiting player-vs-bot choice")
}

// enterCallPhase randomly designates the caller and presents the call to
// them. The non-caller has no action in this phase.
func (e *Engine) enterCallPhase(ctx context.Context, sess *models.Session) {
	caller := e.rng.ChooseCaller(sess.InitiatorID, *sess.OpponentID)
	sess.Game.CallerID = &caller
	if caller == sess.InitiatorID {
		sess.Game.CallerName = sess.Game.InitiatorName
	} else {
		sess.Game.CallerName = sess.Game.OpponentName
	}
	sess.Phase = models.PhaseAwaitingPvPCall

	data := e.offerData(sess)
	data["caller_name"] = sess.Game.CallerName
	content := Content{Kind: ContentCall, Data: data}
	actions := []ActionSpec{
		{Name: ActionCall, ActorID: caller, Param: string(models.SideHeads)},
		{Name: ActionCall, ActorID: caller, Param: string(models.SideTails)},
	}
	if err := e.updateSurface(ctx, sess, content, actions); err != nil {
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return
	}
	e.armPhaseTimer(sess)

	log.Info().
		Str("session_id", sess.ID.String()).
		Int64("caller_id", caller).
		Msg("awaiting player-vs-player call")
}

// cancelSession closes the offer without a winner.
func (e *Engine) cancelSession(ctx context.Context, sess *models.Session) {
	content := Content{Kind: ContentCancelled, Data: e.offerData(sess)}
	if err := e.updateSurface(ctx, sess, content, nil); err != nil {
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return
	}
	e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedCancelled})
}

func parseSide(s string) (models.Side, bool) {
	switch models.Side(s) {
	case models.SideHeads:
		return models.SideHeads, true
	case models.SideTails:
		return models.SideTails, true
	}
	return "", false
}

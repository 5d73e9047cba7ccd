// Package engine implements the coinflip session state machine: offer,
// acceptance, call, resolution, and the once-only commit of terminal
// outcomes. All handlers for one session are serialized by the session lock;
// registry membership, checked after the lock is acquired, is the sole gate
// that decides whether a handler may still mutate anything.
package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/events"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/registry"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/rng"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/timers"
	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

// ErrContentUnchanged is returned by a Presenter when an update carries the
// same content the surface already shows. It is the one presenter error that
// never aborts a transition.
var ErrContentUnchanged = errors.New("presenter: content unchanged")

// ErrPresentationFailed wraps presenter errors surfaced from Start. Sessions
// failing this way have already been finalized with an error status.
var ErrPresentationFailed = errors.New("presentation failed")

// Store persists terminal outcomes.
type Store interface {
	Persist(ctx context.Context, id uuid.UUID, status models.SessionStatus, snapshot []byte) error
}

// Presenter renders session state to the chat surface and relays player
// clicks back as ActionEvents. The engine only ever holds the opaque message
// ref it got from Send.
type Presenter interface {
	Send(ctx context.Context, chatID int64, content Content, actions []ActionSpec) (string, error)
	Update(ctx context.Context, ref string, content Content, actions []ActionSpec) error
	Acknowledge(ctx context.Context, actorID int64, text string) error
}

// EventSink receives the settlement event after a terminal status is
// persisted.
type EventSink interface {
	PublishSettled(ctx context.Context, payload events.SessionSettledPayload) error
}

// Content is a semantic render payload; the Presenter owns all wording.
type Content struct {
	Kind string         `json:"kind"`
	Data map[string]any `json:"data,omitempty"`
}

// Content kinds.
const (
	ContentOfferUnified = "offer_unified"
	ContentOfferDirect  = "offer_direct"
	ContentChoice       = "choice"
	ContentCall         = "call"
	ContentFlipFrame    = "flip_frame"
	ContentResult       = "result"
	ContentCancelled    = "cancelled"
	ContentTimeout      = "timeout"
)

// ActionSpec enumerates one player-triggered transition the Presenter should
// offer, and who may trigger it. ActorID 0 means any non-initiator.
type ActionSpec struct {
	Name    string `json:"name"`
	ActorID int64  `json:"actor_id,omitempty"`
	Param   string `json:"param,omitempty"`
}

// Action names.
const (
	ActionAcceptBot = "accept_bot"
	ActionAcceptPvP = "accept_pvp"
	ActionAccept    = "accept"
	ActionDecline   = "decline"
	ActionCancel    = "cancel"
	ActionChoose    = "choose"
	ActionCall      = "call"
)

// ActionEvent is an inbound player click relayed by the Presenter.
type ActionEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Action    string    `json:"action"`
	ActorID   int64     `json:"actor_id"`
	ActorName string    `json:"actor_name,omitempty"`
	Param     string    `json:"param,omitempty"`
}

// Timings holds the wait durations of every human-decision point and the
// cadence of the reveal animation.
type Timings struct {
	OfferWait          time.Duration
	ChoiceWait         time.Duration
	CallWait           time.Duration
	AnimationSteps     int
	AnimationStepDelay time.Duration
}

// DefaultTimings returns production wait durations.
func DefaultTimings() Timings {
	return Timings{
		OfferWait:          60 * time.Second,
		ChoiceWait:         30 * time.Second,
		CallWait:           30 * time.Second,
		AnimationSteps:     3,
		AnimationStepDelay: 1200 * time.Millisecond,
	}
}

// Engine drives sessions through the state machine.
type Engine struct {
	registry  *registry.Registry
	timers    *timers.Registry
	store     Store
	presenter Presenter
	sink      EventSink
	rng       rng.Provider
	clock     clockwork.Clock
	timings   Timings
}

// New creates an engine.
func New(
	reg *registry.Registry,
	tim *timers.Registry,
	store Store,
	presenter Presenter,
	sink EventSink,
	provider rng.Provider,
	clock clockwork.Clock,
	timings Timings,
) *Engine {
	return &Engine{
		registry:  reg,
		timers:    tim,
		store:     store,
		presenter: presenter,
		sink:      sink,
		rng:       provider,
		clock:     clock,
		timings:   timings,
	}
}

// Start materializes a freshly claimed session: inserts it into the registry,
// renders the first decision point and arms the offer timer. The session is
// registered before any timer is armed so every later handler can rely on
// registry membership as the liveness gate.
func (e *Engine) Start(ctx context.Context, sess *models.Session) error {
	sess.Lock()
	defer sess.Unlock()

	e.registry.Put(sess)

	var content Content
	var actions []ActionSpec
	if sess.Direct() {
		sess.Phase = models.PhaseOfferDirect
		content = Content{Kind: ContentOfferDirect, Data: e.offerData(sess)}
		actions = []ActionSpec{
			{Name: ActionAccept, ActorID: *sess.OpponentID},
			{Name: ActionDecline, ActorID: *sess.OpponentID},
			{Name: ActionCancel, ActorID: sess.InitiatorID},
		}
	} else {
		sess.Phase = models.PhaseOfferUnified
		content = Content{Kind: ContentOfferUnified, Data: e.offerData(sess)}
		actions = []ActionSpec{
			{Name: ActionAcceptBot, ActorID: sess.InitiatorID},
			{Name: ActionAcceptPvP},
			{Name: ActionCancel, ActorID: sess.InitiatorID},
		}
	}

	ref, err := e.presenter.Send(ctx, sess.ChatID, content, actions)
	if err != nil {
		log.Error().
			Err(err).
			Str("session_id", sess.ID.String()).
			Msg("failed to present offer")
		e.finalize(ctx, sess, models.Outcome{Status: models.StatusCompletedErrorUI})
		return errors.Join(ErrPresentationFailed, err)
	}
	sess.Game.MessageRef = ref

	e.armPhaseTimer(sess)

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("phase", string(sess.Phase)).
		Int64("chat_id", sess.ChatID).
		Int64("bet_amount", sess.BetAmount).
		Msg("session started")
	return nil
}

// armPhaseTimer arms the timeout for the session's current waiting phase.
// Arming replaces any previous timer, so at most one is ever live.
func (e *Engine) armPhaseTimer(sess *models.Session) {
	id := sess.ID
	switch sess.Phase {
	case models.PhaseOfferUnified, models.PhaseOfferDirect:
		e.timers.Arm(id, e.timings.OfferWait, func() { e.onOfferTimeout(id) })
	case models.PhaseAwaitingPvBChoice:
		e.timers.Arm(id, e.timings.ChoiceWait, func() { e.onChoiceTimeout(id) })
	case models.PhaseAwaitingPvPCall:
		e.timers.Arm(id, e.timings.CallWait, func() { e.onCallTimeout(id) })
	}
}

func (e *Engine) offerData(sess *models.Session) map[string]any {
	data := map[string]any{
		"bet_amount":     sess.BetAmount,
		"initiator_name": sess.Game.InitiatorName,
	}
	if sess.Game.OpponentName != "" {
		data["opponent_name"] = sess.Game.OpponentName
	}
	return data
}

// ack notifies an actor without touching session state.
func (e *Engine) ack(ctx context.Context, actorID int64, text string) {
	if err := e.presenter.Acknowledge(ctx, actorID, text); err != nil {
		log.Debug().Err(err).Int64("actor_id", actorID).Msg("acknowledge failed")
	}
}

// reject denies an action and restores the wait the handler interrupted: the
// entry guard cancelled the phase timer, so a rejection must re-arm it before
// returning.
func (e *Engine) reject(ctx context.Context, sess *models.Session, ev ActionEvent, reason string) {
	log.Debug().
		Str("session_id", sess.ID.String()).
		Str("action", ev.Action).
		Int64("actor_id", ev.ActorID).
		Str("reason", reason).
		Msg("action rejected")
	e.ack(ctx, ev.ActorID, reason)
	e.armPhaseTimer(sess)
}

// playerLabel returns the display identity persisted as the winner.
func playerLabel(id int64, name string) string {
	if name != "" {
		return name
	}
	return strconv.FormatInt(id, 10)
}

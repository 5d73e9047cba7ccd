package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/events"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/registry"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/timers"
	"github.com/KraakeAA/CoinFlipHelper/internal/models"
)

type fakeStore struct {
	mu        sync.Mutex
	persisted map[uuid.UUID][]models.SessionStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{persisted: make(map[uuid.UUID][]models.SessionStatus)}
}

func (s *fakeStore) Persist(_ context.Context, id uuid.UUID, status models.SessionStatus, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted[id] = append(s.persisted[id], status)
	return nil
}

func (s *fakeStore) statuses(id uuid.UUID) []models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SessionStatus, len(s.persisted[id]))
	copy(out, s.persisted[id])
	return out
}

type renderCall struct {
	ref     string
	content Content
	actions []ActionSpec
}

type fakePresenter struct {
	mu        sync.Mutex
	sends     []renderCall
	updates   []renderCall
	acks      []string
	sendErr   error
	updateErr error
}

func (p *fakePresenter) Send(_ context.Context, _ int64, content Content, actions []ActionSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return "", p.sendErr
	}
	ref := uuid.New().String()
	p.sends = append(p.sends, renderCall{ref: ref, content: content, actions: actions})
	return ref, nil
}

func (p *fakePresenter) Update(_ context.Context, ref string, content Content, actions []ActionSpec) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	p.updates = append(p.updates, renderCall{ref: ref, content: content, actions: actions})
	return nil
}

func (p *fakePresenter) Acknowledge(_ context.Context, _ int64, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acks = append(p.acks, text)
	return nil
}

func (p *fakePresenter) lastUpdateKind() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		return ""
	}
	return p.updates[len(p.updates)-1].content.Kind
}

func (p *fakePresenter) updateKinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	kinds := make([]string, len(p.updates))
	for i, u := range p.updates {
		kinds[i] = u.content.Kind
	}
	return kinds
}

func (p *fakePresenter) ackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.acks)
}

type fakeSink struct {
	mu       sync.Mutex
	payloads []events.SessionSettledPayload
}

func (s *fakeSink) PublishSettled(_ context.Context, payload events.SessionSettledPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payloads)
}

// stubRNG produces a fixed flip and caller, so tests pin the outcome.
type stubRNG struct {
	side   models.Side
	caller int64
}

func (r *stubRNG) FlipCoin() models.Side { return r.side }

func (r *stubRNG) ChooseCaller(a, b int64) int64 {
	if r.caller == a || r.caller == b {
		return r.caller
	}
	return a
}

type harness struct {
	engine    *Engine
	registry  *registry.Registry
	timers    *timers.Registry
	store     *fakeStore
	presenter *fakePresenter
	sink      *fakeSink
	clock     *clockwork.FakeClock
	rng       *stubRNG
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		registry:  registry.NewRegistry(),
		store:     newFakeStore(),
		presenter: &fakePresenter{},
		sink:      &fakeSink{},
		clock:     clockwork.NewFakeClock(),
		rng:       &stubRNG{side: models.SideHeads, caller: 1},
	}
	h.timers = timers.NewRegistry(h.clock)

	timings := DefaultTimings()
	timings.AnimationSteps = 2
	timings.AnimationStepDelay = 0 // frames render back to back under test

	h.engine = New(h.registry, h.timers, h.store, h.presenter, h.sink, h.rng, h.clock, timings)
	t.Cleanup(h.timers.Stop)
	return h
}

func unifiedSession() *models.Session {
	return &models.Session{
		ID:             uuid.New(),
		ExternalGameID: "game-1",
		ChatID:         100,
		InitiatorID:    1,
		BetAmount:      50,
		Status:         models.StatusInProgress,
		Game:           models.GameState{InitiatorName: "alice"},
	}
}

func directSession() *models.Session {
	opponent := int64(2)
	sess := unifiedSession()
	sess.OpponentID = &opponent
	sess.Game.OpponentName = "bob"
	return sess
}

func (h *harness) requireFinalized(t *testing.T, id uuid.UUID, status models.SessionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := h.store.statuses(id)
		return len(st) == 1 && st[0] == status && h.sink.count() == 1
	}, time.Second, 10*time.Millisecond)
	require.False(t, h.registry.Contains(id))
	require.False(t, h.timers.Active(id))
}

func TestStartUnifiedOffer(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()

	require.NoError(t, h.engine.Start(context.Background(), sess))

	require.Equal(t, models.PhaseOfferUnified, sess.Phase)
	require.NotEmpty(t, sess.Game.MessageRef)
	require.True(t, h.registry.Contains(sess.ID))
	require.True(t, h.timers.Active(sess.ID))
	require.Len(t, h.presenter.sends, 1)
	require.Equal(t, ContentOfferUnified, h.presenter.sends[0].content.Kind)
}

func TestStartDirectOffer(t *testing.T) {
	h := newHarness(t)
	sess := directSession()

	require.NoError(t, h.engine.Start(context.Background(), sess))

	require.Equal(t, models.PhaseOfferDirect, sess.Phase)
	require.Equal(t, ContentOfferDirect, h.presenter.sends[0].content.Kind)

	// The accept/decline actions are addressed to the named opponent.
	for _, a := range h.presenter.sends[0].actions {
		if a.Name == ActionAccept || a.Name == ActionDecline {
			require.Equal(t, int64(2), a.ActorID)
		}
	}
}

func TestStartPresenterFailure(t *testing.T) {
	h := newHarness(t)
	h.presenter.sendErr = errors.New("surface down")
	sess := unifiedSession()

	err := h.engine.Start(context.Background(), sess)
	require.ErrorIs(t, err, ErrPresentationFailed)

	h.requireFinalized(t, sess.ID, models.StatusCompletedErrorUI)
}

func TestPvBFlowInitiatorWins(t *testing.T) {
	h := newHarness(t)
	h.rng.side = models.SideHeads
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))

	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptBot, ActorID: 1})
	require.Equal(t, models.PhaseAwaitingPvBChoice, sess.Phase)
	require.True(t, h.timers.Active(sess.ID))

	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionChoose, ActorID: 1, Param: "heads"})

	h.requireFinalized(t, sess.ID, models.StatusCompletedP1Win)
	require.Equal(t, models.SideHeads, sess.Game.LandedSide)
	require.Equal(t, "alice", sess.Game.Winner)
	require.Equal(t, "alice", h.sink.payloads[0].Winner)

	// Animation frames precede the result edit.
	kinds := h.presenter.updateKinds()
	require.Equal(t, []string{ContentChoice, ContentFlipFrame, ContentFlipFrame, ContentResult}, kinds)
}

func TestPvBFlowBotWins(t *testing.T) {
	h := newHarness(t)
	h.rng.side = models.SideTails
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptBot, ActorID: 1})
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionChoose, ActorID: 1, Param: "heads"})

	h.requireFinalized(t, sess.ID, models.StatusCompletedBotWin)
	require.Equal(t, models.WinnerBot, sess.Game.Winner)
}

func TestPvPFlowCallerWins(t *testing.T) {
	h := newHarness(t)
	h.rng.side = models.SideHeads
	h.rng.caller = 2
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))

	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptPvP, ActorID: 2, ActorName: "bob"})
	require.Equal(t, models.PhaseAwaitingPvPCall, sess.Phase)
	require.NotNil(t, sess.OpponentID)
	require.Equal(t, int64(2), *sess.OpponentID)
	require.NotNil(t, sess.Game.CallerID)
	require.Equal(t, int64(2), *sess.Game.CallerID)
	require.Equal(t, "bob", sess.Game.CallerName)

	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionCall, ActorID: 2, Param: "heads"})

	h.requireFinalized(t, sess.ID, models.StatusCompletedP2Win)
	require.Equal(t, "bob", sess.Game.Winner)
}

func TestPvPFlowCallerMissesInitiatorWins(t *testing.T) {
	h := newHarness(t)
	h.rng.side = models.SideTails
	h.rng.caller = 2
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptPvP, ActorID: 2, ActorName: "bob"})
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionCall, ActorID: 2, Param: "heads"})

	h.requireFinalized(t, sess.ID, models.StatusCompletedP1Win)
	require.Equal(t, "alice", sess.Game.Winner)
}

func TestDirectOfferDecline(t *testing.T) {
	h := newHarness(t)
	sess := directSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionDecline, ActorID: 2})

	h.requireFinalized(t, sess.ID, models.StatusCompletedCancelled)
	require.Equal(t, ContentCancelled, h.presenter.lastUpdateKind())
}

func TestDirectOfferAcceptByStrangerRejected(t *testing.T) {
	h := newHarness(t)
	sess := directSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAccept, ActorID: 99})

	// Nothing moved, the actor was told off, and the offer wait is re-armed.
	require.Equal(t, models.PhaseOfferDirect, sess.Phase)
	require.True(t, h.registry.Contains(sess.ID))
	require.True(t, h.timers.Active(sess.ID))
	require.Equal(t, 1, h.presenter.ackCount())
	require.Empty(t, h.store.statuses(sess.ID))
}

func TestUnifiedOfferSelfAcceptRejected(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptPvP, ActorID: 1})

	require.Equal(t, models.PhaseOfferUnified, sess.Phase)
	require.Nil(t, sess.OpponentID)
	require.True(t, h.timers.Active(sess.ID))
}

func TestCancelByNonInitiatorRejected(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionCancel, ActorID: 2})

	require.Equal(t, models.PhaseOfferUnified, sess.Phase)
	require.Empty(t, h.store.statuses(sess.ID))
}

func TestCancelByInitiator(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionCancel, ActorID: 1})

	h.requireFinalized(t, sess.ID, models.StatusCompletedCancelled)
}

func TestActionOnUnknownSessionAcked(t *testing.T) {
	h := newHarness(t)

	h.engine.HandleAction(context.Background(), ActionEvent{SessionID: uuid.New(), Action: ActionCancel, ActorID: 1})

	require.Equal(t, 1, h.presenter.ackCount())
	require.Equal(t, 0, h.sink.count())
}

func TestOfferTimeout(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()

	require.NoError(t, h.engine.Start(context.Background(), sess))

	h.clock.Advance(61 * time.Second)

	h.requireFinalized(t, sess.ID, models.StatusCompletedTimeout)
	require.Eventually(t, func() bool {
		return h.presenter.lastUpdateKind() == ContentTimeout
	}, time.Second, 10*time.Millisecond)
}

func TestChoiceTimeoutBotWinsByForfeit(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptBot, ActorID: 1})

	h.clock.Advance(31 * time.Second)

	h.requireFinalized(t, sess.ID, models.StatusCompletedBotWin)
	require.Equal(t, models.WinnerBot, h.sink.payloads[0].Winner)
}

func TestCallTimeoutNonCallerWinsByForfeit(t *testing.T) {
	h := newHarness(t)
	h.rng.caller = 1 // initiator calls, so the opponent wins the forfeit
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptPvP, ActorID: 2, ActorName: "bob"})

	h.clock.Advance(31 * time.Second)

	h.requireFinalized(t, sess.ID, models.StatusCompletedP2Win)
	require.Equal(t, "bob", h.sink.payloads[0].Winner)
}

func TestActionDisarmsPhaseTimer(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))

	// Accept late in the offer window, then cross the original offer
	// deadline: the cancelled offer timer must not fire, and the fresh
	// choice window is still open.
	h.clock.Advance(40 * time.Second)
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptBot, ActorID: 1})
	h.clock.Advance(25 * time.Second)

	require.Equal(t, models.PhaseAwaitingPvBChoice, sess.Phase)
	require.True(t, h.registry.Contains(sess.ID))
	require.Empty(t, h.store.statuses(sess.ID))
}

func TestRejectedActionRestoresFullWait(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))

	// Burn most of the offer window, then trip a rejection.
	h.clock.Advance(50 * time.Second)
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionCancel, ActorID: 2})

	// The re-armed timer grants a full window again.
	h.clock.Advance(50 * time.Second)
	require.Equal(t, models.PhaseOfferUnified, sess.Phase)
	require.True(t, h.registry.Contains(sess.ID))

	h.clock.Advance(11 * time.Second)
	h.requireFinalized(t, sess.ID, models.StatusCompletedTimeout)
}

func TestFinalizeHappensOnce(t *testing.T) {
	h := newHarness(t)
	sess := directSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionDecline, ActorID: 2})
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionDecline, ActorID: 2})

	h.requireFinalized(t, sess.ID, models.StatusCompletedCancelled)
	require.Len(t, h.store.statuses(sess.ID), 1)
	require.Equal(t, 1, h.sink.count())
}

func TestResolutionUIFailureFinalizesErrorUI(t *testing.T) {
	h := newHarness(t)
	sess := unifiedSession()
	ctx := context.Background()

	require.NoError(t, h.engine.Start(ctx, sess))
	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionAcceptBot, ActorID: 1})

	h.presenter.mu.Lock()
	h.presenter.updateErr = errors.New("surface down")
	h.presenter.mu.Unlock()

	h.engine.HandleAction(ctx, ActionEvent{SessionID: sess.ID, Action: ActionChoose, ActorID: 1, Param: "heads"})

	h.requireFinalized(t, sess.ID, models.StatusCompletedErrorUI)
}

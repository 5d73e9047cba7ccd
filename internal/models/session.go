package models

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionStatus defines the lifecycle status of a coinflip session.
type SessionStatus string

const (
	StatusPendingPickup SessionStatus = "pending_pickup"
	StatusInProgress    SessionStatus = "in_progress"

	StatusCompletedP1Win     SessionStatus = "completed_p1_win"
	StatusCompletedP2Win     SessionStatus = "completed_p2_win"
	StatusCompletedBotWin    SessionStatus = "completed_bot_win"
	StatusCompletedCancelled SessionStatus = "completed_cancelled"
	StatusCompletedTimeout   SessionStatus = "completed_timeout"
	StatusCompletedError     SessionStatus = "completed_error"
	StatusCompletedErrorUI   SessionStatus = "completed_error_ui"
)

// Terminal reports whether the status is a final outcome. Once a terminal
// status is persisted the session no longer exists in memory.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompletedP1Win, StatusCompletedP2Win, StatusCompletedBotWin,
		StatusCompletedCancelled, StatusCompletedTimeout,
		StatusCompletedError, StatusCompletedErrorUI:
		return true
	}
	return false
}

// Phase defines the current step within a session's lifecycle. Phases advance
// monotonically; no phase is ever revisited.
type Phase string

const (
	PhaseOfferUnified      Phase = "offer_unified"
	PhaseOfferDirect       Phase = "offer_direct"
	PhaseAwaitingPvBChoice Phase = "awaiting_pvb_choice"
	PhaseAwaitingPvPCall   Phase = "awaiting_pvp_call"
	PhaseResolving         Phase = "resolving"
	PhaseTerminal          Phase = "terminal"
)

// Side is one face of the coin.
type Side string

const (
	SideHeads Side = "heads"
	SideTails Side = "tails"
)

// WinnerBot is the winner identity recorded when the house wins a PvB game.
const WinnerBot = "bot"

// Outcome pairs a terminal status with the winner identity for the snapshot.
// The winner is empty for cancelled/timeout/error outcomes.
type Outcome struct {
	Status SessionStatus `json:"status"`
	Winner string        `json:"winner,omitempty"`
}

// GameState holds the phase-specific fields of a running session. It is
// persisted as the jsonb snapshot when the session reaches a terminal status.
type GameState struct {
	MessageRef    string `json:"message_ref,omitempty"`
	InitiatorName string `json:"initiator_name,omitempty"`
	OpponentName  string `json:"opponent_name,omitempty"`
	CallerID      *int64 `json:"caller_id,omitempty"`
	CallerName    string `json:"caller_name,omitempty"`
	Choice        Side   `json:"choice,omitempty"`
	LandedSide    Side   `json:"landed_side,omitempty"`
	Winner        string `json:"winner,omitempty"`
}

// Session represents one end-to-end wager game instance. While active it is
// shared by reference between the registry, the pickup dispatcher and timer
// callbacks; the embedded mutex serializes its handlers.
type Session struct {
	mu sync.Mutex

	ID             uuid.UUID     `json:"id"`
	ExternalGameID string        `json:"external_game_id"`
	ChatID         int64         `json:"chat_id"`
	InitiatorID    int64         `json:"initiator_id"`
	OpponentID     *int64        `json:"opponent_id,omitempty"`
	BetAmount      int64         `json:"bet_amount"`
	Status         SessionStatus `json:"status"`
	Phase          Phase         `json:"phase"`
	Game           GameState     `json:"game"`
	ClaimedAt      time.Time     `json:"claimed_at"`
}

// Lock serializes handlers for this session. Exactly one handler owns the
// session between Lock and Unlock.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases handler ownership.
func (s *Session) Unlock() { s.mu.Unlock() }

// Direct reports whether the session was created as a direct challenge with a
// pre-assigned opponent.
func (s *Session) Direct() bool { return s.OpponentID != nil }

package events

import (
	"time"
)

// Event types published for downstream consumers (settlement, audit).
const (
	TypeSessionSettled = "SessionSettled"
)

// SessionSettledPayload is emitted exactly once per session, after its
// terminal status has been persisted. The settlement process reacts to it.
type SessionSettledPayload struct {
	SessionID      string    `json:"session_id"`
	ExternalGameID string    `json:"external_game_id"`
	ChatID         int64     `json:"chat_id"`
	InitiatorID    int64     `json:"initiator_id"`
	OpponentID     *int64    `json:"opponent_id,omitempty"`
	BetAmount      int64     `json:"bet_amount"`
	Status         string    `json:"status"`
	Winner         string    `json:"winner,omitempty"`
	SettledAt      time.Time `json:"settled_at"`
}

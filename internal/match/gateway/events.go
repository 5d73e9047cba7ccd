package gateway

import (
	"time"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/engine"
)

// RenderEvent is the wire shape of everything the gateway pushes to clients:
// new game surfaces, edits to existing ones, and private acknowledgements.
type RenderEvent struct {
	ID        string              `json:"id"`
	Type      EventType           `json:"type"`
	Ref       string              `json:"ref,omitempty"`
	ChatID    int64               `json:"chat_id,omitempty"`
	Content   engine.Content      `json:"content"`
	Actions   []engine.ActionSpec `json:"actions,omitempty"`
	Text      string              `json:"text,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// EventType represents the type of render event
type EventType string

const (
	EventTypeMessagePosted EventType = "MessagePosted"
	EventTypeMessageEdited EventType = "MessageEdited"
	EventTypeAcknowledged  EventType = "Acknowledged"
)

// ClientMessage is what clients send over the socket: either a button press
// on a live game or a request to create a new one.
type ClientMessage struct {
	Type string `json:"type"` // "action" or "create"

	// action fields
	SessionID string `json:"session_id,omitempty"`
	Action    string `json:"action,omitempty"`
	ActorName string `json:"actor_name,omitempty"`
	Param     string `json:"param,omitempty"`

	// create fields
	ExternalGameID string `json:"external_game_id,omitempty"`
	InitiatorName  string `json:"initiator_name,omitempty"`
	OpponentID     *int64 `json:"opponent_id,omitempty"`
	OpponentName   string `json:"opponent_name,omitempty"`
	BetAmount      int64  `json:"bet_amount,omitempty"`
}

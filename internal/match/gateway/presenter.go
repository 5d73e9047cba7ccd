package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/engine"
)

// Presenter renders game state over the WebSocket fan-out. Each Send mints an
// opaque message ref; edits address that ref so the surface is updated in
// place rather than reposted.
type Presenter struct {
	manager *ConnectionManager

	mu       sync.Mutex
	surfaces map[string]*surface
}

type surface struct {
	chatID   int64
	rendered []byte // last payload shown, for the unchanged-content check
}

// NewPresenter creates a presenter on a connection manager.
func NewPresenter(manager *ConnectionManager) *Presenter {
	return &Presenter{
		manager:  manager,
		surfaces: make(map[string]*surface),
	}
}

func renderPayload(content engine.Content, actions []engine.ActionSpec) ([]byte, error) {
	return json.Marshal(struct {
		Content engine.Content      `json:"content"`
		Actions []engine.ActionSpec `json:"actions,omitempty"`
	}{content, actions})
}

// Send posts a new game surface to a chat and returns its ref.
func (p *Presenter) Send(_ context.Context, chatID int64, content engine.Content, actions []engine.ActionSpec) (string, error) {
	payload, err := renderPayload(content, actions)
	if err != nil {
		return "", fmt.Errorf("failed to render content: %w", err)
	}

	ref := uuid.New().String()
	p.mu.Lock()
	p.surfaces[ref] = &surface{chatID: chatID, rendered: payload}
	p.mu.Unlock()

	p.manager.BroadcastToChat(chatID, &RenderEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeMessagePosted,
		Ref:       ref,
		ChatID:    chatID,
		Content:   content,
		Actions:   actions,
		Timestamp: time.Now().UTC(),
	})
	return ref, nil
}

// Update edits an existing surface in place. Returns ErrContentUnchanged when
// the new payload is identical to what the surface already shows.
func (p *Presenter) Update(_ context.Context, ref string, content engine.Content, actions []engine.ActionSpec) error {
	payload, err := renderPayload(content, actions)
	if err != nil {
		return fmt.Errorf("failed to render content: %w", err)
	}

	p.mu.Lock()
	s, ok := p.surfaces[ref]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("unknown message ref %s", ref)
	}
	if string(s.rendered) == string(payload) {
		p.mu.Unlock()
		return engine.ErrContentUnchanged
	}
	s.rendered = payload
	chatID := s.chatID
	if terminalContent(content.Kind) {
		// Final edit for this surface; no further updates can address it.
		delete(p.surfaces, ref)
	}
	p.mu.Unlock()

	p.manager.BroadcastToChat(chatID, &RenderEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeMessageEdited,
		Ref:       ref,
		ChatID:    chatID,
		Content:   content,
		Actions:   actions,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Acknowledge delivers a private notice to one user.
func (p *Presenter) Acknowledge(_ context.Context, actorID int64, text string) error {
	p.manager.BroadcastToUser(actorID, &RenderEvent{
		ID:        uuid.New().String(),
		Type:      EventTypeAcknowledged,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func terminalContent(kind string) bool {
	switch kind {
	case engine.ContentResult, engine.ContentCancelled, engine.ContentTimeout:
		return true
	}
	return false
}

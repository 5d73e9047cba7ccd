package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KraakeAA/CoinFlipHelper/internal/match/engine"
	"github.com/KraakeAA/CoinFlipHelper/internal/match/repository"
)

// ActionHandler consumes button presses relayed from clients.
type ActionHandler interface {
	HandleAction(ctx context.Context, ev engine.ActionEvent)
}

// SessionCreator records a new pending session for pickup.
type SessionCreator interface {
	CreatePending(ctx context.Context, req repository.CreateSessionRequest) error
}

// WebSocketHandler handles WebSocket upgrade requests and routes inbound
// client messages to the state machine and the store.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	actions           ActionHandler
	creator           SessionCreator
}

// NewWebSocketHandler creates a new WebSocket handler and installs itself as
// the connection manager's client message handler.
func NewWebSocketHandler(cm *ConnectionManager, actions ActionHandler, creator SessionCreator) *WebSocketHandler {
	h := &WebSocketHandler{
		connectionManager: cm,
		actions:           actions,
		creator:           creator,
	}
	cm.SetClientMessageHandler(h.handleClientMessage)
	return h
}

// HandleGameConnection handles WebSocket connections for a chat
func (h *WebSocketHandler) HandleGameConnection(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil {
		http.Error(w, "chat_id is required", http.StatusBadRequest)
		return
	}

	// In production the user identity would come from a JWT or session
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, userID, chatID); err != nil {
		log.Error().
			Err(err).
			Int64("chat_id", chatID).
			Int64("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// handleClientMessage routes one inbound message from a connection. The
// actor's identity is always taken from the connection, never from the
// payload.
func (h *WebSocketHandler) handleClientMessage(conn *Connection, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("dropping malformed client message")
		return
	}

	ctx := context.Background()
	switch msg.Type {
	case "action":
		sessionID, err := uuid.Parse(msg.SessionID)
		if err != nil {
			log.Debug().
				Str("connection_id", conn.ID).
				Str("session_id", msg.SessionID).
				Msg("dropping action with bad session id")
			return
		}
		h.actions.HandleAction(ctx, engine.ActionEvent{
			SessionID: sessionID,
			Action:    msg.Action,
			ActorID:   conn.UserID,
			ActorName: msg.ActorName,
			Param:     msg.Param,
		})

	case "create":
		req := repository.CreateSessionRequest{
			ID:             uuid.New(),
			ExternalGameID: msg.ExternalGameID,
			ChatID:         conn.ChatID,
			InitiatorID:    conn.UserID,
			InitiatorName:  msg.InitiatorName,
			OpponentID:     msg.OpponentID,
			OpponentName:   msg.OpponentName,
			BetAmount:      msg.BetAmount,
		}
		if req.ExternalGameID == "" {
			req.ExternalGameID = req.ID.String()
		}
		if err := h.creator.CreatePending(ctx, req); err != nil {
			log.Error().
				Err(err).
				Str("external_game_id", req.ExternalGameID).
				Msg("failed to create pending session")
		}

	default:
		log.Debug().
			Str("connection_id", conn.ID).
			Str("type", msg.Type).
			Msg("unknown client message type")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(stats)
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/game", h.HandleGameConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

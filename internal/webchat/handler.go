// Package webchat exposes the dialogue over a WebSocket, so a clinic page
// can embed the triage chat without polling the HTTP endpoint.
package webchat

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/avdeev-dm/triage-bot/internal/dialogue"
	"github.com/avdeev-dm/triage-bot/internal/session"
	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

// Turner processes one dialogue turn. Implemented by *dialogue.Engine.
type Turner interface {
	HandleTurn(ctx context.Context, sessionID, text string) (*dialogue.TurnResult, error)
}

// Handler manages webchat WebSocket connections.
type Handler struct {
	engine Turner
	store  session.Store
	logger *logging.Logger

	mu    sync.RWMutex
	conns map[string]*websocket.Conn // sessionID -> active connection
}

// InboundMessage is what the page sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we push to the page.
type OutboundMessage struct {
	Type             string           `json:"type"` // "message", "typing", "history", "session", "pong", "error"
	Text             string           `json:"text,omitempty"`
	Role             string           `json:"role,omitempty"`
	SessionID        string           `json:"session_id,omitempty"`
	Step             string           `json:"step,omitempty"`
	BookingReference string           `json:"booking_reference,omitempty"`
	Timestamp        string           `json:"timestamp,omitempty"`
	Messages         []HistoryMessage `json:"messages,omitempty"`
}

// HistoryMessage is one replayed history entry.
type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// NewHandler creates a webchat handler. store may be nil; history replay is
// then skipped.
func NewHandler(engine Turner, store session.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine: engine,
		store:  store,
		logger: logger,
		conns:  make(map[string]*websocket.Conn),
	}
}

// HandleWebSocket upgrades to WebSocket and runs the dialogue loop.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{Type: "session", SessionID: sessionID})
	h.replayHistory(r.Context(), conn, sessionID)

	h.mu.Lock()
	h.conns[sessionID] = conn
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.conns[sessionID] == conn {
			delete(h.conns, sessionID)
		}
		h.mu.Unlock()
	}()

	h.logger.Info("webchat connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}
		if msg.Type != "message" {
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "typing"})

		result, err := h.engine.HandleTurn(r.Context(), sessionID, msg.Text)
		if err != nil {
			h.logger.Error("webchat turn failed", "session_id", sessionID, "error", err)
			_ = websocket.JSON.Send(conn, OutboundMessage{
				Type: "error",
				Text: "Произошла ошибка. Пожалуйста, попробуйте позже.",
			})
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:             "message",
			Role:             session.RoleAssistant,
			Text:             result.Reply,
			SessionID:        result.SessionID,
			Step:             string(result.Step),
			BookingReference: result.BookingReference,
			Timestamp:        time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// replayHistory sends the stored dialogue so a reconnecting page can restore
// the transcript. The pinned system prompt stays server-side.
func (h *Handler) replayHistory(ctx context.Context, conn *websocket.Conn, sessionID string) {
	if h.store == nil {
		return
	}
	record, err := h.store.Load(ctx, sessionID)
	if err != nil || record == nil {
		return
	}
	history := make([]HistoryMessage, 0, len(record.History))
	for _, m := range record.History {
		if m.Role == session.RoleSystem || strings.TrimSpace(m.Text) == "" {
			continue
		}
		history = append(history, HistoryMessage{Role: m.Role, Text: m.Text})
	}
	if len(history) > 0 {
		_ = websocket.JSON.Send(conn, OutboundMessage{Type: "history", Messages: history})
	}
}

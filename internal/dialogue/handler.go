package dialogue

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

// Handler wires HTTP requests to the dialogue engine.
type Handler struct {
	engine *Engine
	logger *logging.Logger
}

// NewHandler creates a dialogue handler.
func NewHandler(engine *Engine, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// ChatRequest is one inbound turn. A missing session_id mints a new session.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// ChatResponse carries the reply plus session metadata the page needs.
type ChatResponse struct {
	SessionID        string `json:"session_id"`
	Response         string `json:"response"`
	Step             string `json:"step"`
	BookingReference string `json:"booking_reference,omitempty"`
}

// ResetRequest destroys a session.
type ResetRequest struct {
	SessionID string `json:"session_id"`
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode chat request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.engine.HandleTurn(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.logger.Error("failed to process turn", "session_id", req.SessionID, "error", err)
		h.writeJSON(w, http.StatusInternalServerError, ChatResponse{
			SessionID: req.SessionID,
			Response:  "Произошла ошибка. Пожалуйста, попробуйте позже.",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, ChatResponse{
		SessionID:        result.SessionID,
		Response:         result.Reply,
		Step:             string(result.Step),
		BookingReference: result.BookingReference,
	})
}

// Reset handles POST /reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode reset request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		http.Error(w, "session_id required", http.StatusBadRequest)
		return
	}

	if err := h.engine.Reset(r.Context(), req.SessionID); err != nil {
		h.logger.Error("failed to reset session", "session_id", req.SessionID, "error", err)
		http.Error(w, "Failed to reset session", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

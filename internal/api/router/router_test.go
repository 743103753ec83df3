package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeev-dm/triage-bot/internal/booking"
	"github.com/avdeev-dm/triage-bot/internal/dialogue"
	"github.com/avdeev-dm/triage-bot/internal/extract"
	"github.com/avdeev-dm/triage-bot/internal/llm"
	"github.com/avdeev-dm/triage-bot/internal/session"
	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

type fixedModel struct{ text string }

func (m *fixedModel) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{Text: m.text}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.New("error")
	gateway := llm.NewGateway(&fixedModel{text: "Рекомендуем обратиться к терапевту"}, llm.GatewayConfig{}, logger)
	engine := dialogue.NewEngine(
		session.NewMemoryStore(),
		extract.New(nil, nil),
		gateway,
		booking.NewFakeConnector(logger),
		nil,
		nil,
		dialogue.Config{},
		logger,
	)

	return New(&Config{
		Logger:          logger,
		DialogueHandler: dialogue.NewHandler(engine, logger),
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterChatEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body, err := json.Marshal(dialogue.ChatRequest{SessionID: "sess-1", Message: "Иван. Болит голова"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp dialogue.ChatResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "awaiting_confirmation", resp.Step)
	assert.Contains(t, resp.Response, "терапевт")
}

func TestRouterResetEndpoint(t *testing.T) {
	router := newTestRouter(t)

	body := []byte(`{"session_id":"sess-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/reset", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

package llm

import (
	"context"
	"strings"
	"time"

	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

// DefaultFallbackText is returned whenever the model cannot produce a
// usable reply. The dialogue engine treats it as ordinary model output.
const DefaultFallbackText = "Извините, произошла ошибка при обработке вашего запроса. " +
	"Пожалуйста, попробуйте еще раз позже."

// Gateway is the dialogue engine's view of the conversational model:
// a message list in, plain reply text out. It never returns an error —
// network faults, timeouts, and unrecognized response shapes all collapse
// into the fixed fallback text, so upstream drift cannot crash a turn.
type Gateway struct {
	client       Client
	timeout      time.Duration
	fallbackText string
	temperature  float64
	maxTokens    int
	logger       *logging.Logger
}

// GatewayConfig tunes the gateway. Zero values select defaults.
type GatewayConfig struct {
	Timeout      time.Duration
	FallbackText string
	Temperature  float64
	MaxTokens    int
}

// NewGateway wraps a provider client with the never-fail text contract.
func NewGateway(client Client, cfg GatewayConfig, logger *logging.Logger) *Gateway {
	if client == nil {
		panic("llm: client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	fallbackText := cfg.FallbackText
	if strings.TrimSpace(fallbackText) == "" {
		fallbackText = DefaultFallbackText
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Gateway{
		client:       client,
		timeout:      timeout,
		fallbackText: fallbackText,
		temperature:  cfg.Temperature,
		maxTokens:    maxTokens,
		logger:       logger,
	}
}

// Complete submits the message list and returns reply text. The second
// return value reports whether the reply is genuine model output; the
// fallback text yields false.
func (g *Gateway) Complete(ctx context.Context, messages []ChatMessage) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Complete(ctx, Request{
		Messages:    messages,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		g.logger.Error("model completion failed, substituting fallback text", "error", err)
		return g.fallbackText, false
	}
	if strings.TrimSpace(resp.Text) == "" {
		g.logger.Warn("model returned empty reply, substituting fallback text")
		return g.fallbackText, false
	}
	return resp.Text, true
}

// FallbackText exposes the configured apology string.
func (g *Gateway) FallbackText() string {
	return g.fallbackText
}

// Package llm wraps the external conversational model behind a narrow
// gateway. Provider clients return errors; the Gateway converts every
// failure mode into a fixed fallback reply so the dialogue engine never sees
// an upstream fault.
package llm

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of the message list sent to the model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request.
type Request struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// Response is a provider-neutral completion result.
type Response struct {
	Text       string
	StopReason string
}

// Client is implemented by each model provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

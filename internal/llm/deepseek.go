package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DeepSeekConfig describes how to reach the chat-completions endpoint.
type DeepSeekConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DeepSeekClient talks to the DeepSeek chat-completions API. The response
// envelope has drifted across API versions, so decoding tolerates several
// shapes instead of binding to one.
type DeepSeekClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewDeepSeekClient validates the configuration and returns a ready client.
func NewDeepSeekClient(cfg DeepSeekConfig) (*DeepSeekClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("llm: base URL required")
	}
	model := cfg.Model
	if strings.TrimSpace(model) == "" {
		model = "deepseek-chat"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DeepSeekClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// Complete sends the message list and returns the normalized reply text.
func (c *DeepSeekClient) Complete(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, errors.New("llm: at least one message required")
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	payload, err := json.Marshal(chatCompletionRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("llm: request build failed: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: read response failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("llm: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	text, stopReason, err := normalizeEnvelope(data)
	if err != nil {
		return Response{}, err
	}
	return Response{Text: text, StopReason: stopReason}, nil
}

// envelope covers the response shapes observed in the wild:
// choices[0].message.content, choices[0].text, and top-level
// content/text/response fields.
type envelope struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Content  string `json:"content"`
	Text     string `json:"text"`
	Response string `json:"response"`
}

// ErrUnrecognizedEnvelope means the body decoded as JSON but matched none of
// the known reply shapes.
var ErrUnrecognizedEnvelope = errors.New("llm: unrecognized response envelope")

func normalizeEnvelope(data []byte) (text, stopReason string, err error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", "", fmt.Errorf("llm: decode response failed: %w", err)
	}

	if len(env.Choices) > 0 {
		choice := env.Choices[0]
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, choice.FinishReason, nil
		}
		if content := strings.TrimSpace(choice.Text); content != "" {
			return content, choice.FinishReason, nil
		}
	}
	for _, candidate := range []string{env.Content, env.Text, env.Response} {
		if content := strings.TrimSpace(candidate); content != "" {
			return content, "", nil
		}
	}
	return "", "", ErrUnrecognizedEnvelope
}

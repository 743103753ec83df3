package llm

import (
	"context"

	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

// FallbackClient wraps a primary provider with an optional secondary one.
// If the primary fails the request is retried once against the secondary.
type FallbackClient struct {
	primary   Client
	secondary Client
	logger    *logging.Logger
}

// NewFallbackClient creates a fallback-enabled client. A nil secondary
// leaves only the primary in play.
func NewFallbackClient(primary, secondary Client, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, secondary: secondary, logger: logger}
}

// Complete tries the primary provider and falls back to the secondary.
func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary model failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.secondary != nil,
	)

	if c.secondary == nil {
		return Response{}, err
	}

	fallbackResp, fallbackErr := c.secondary.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback model also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}

	c.logger.Info("fallback model succeeded after primary failure")
	return fallbackResp, nil
}

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

// scriptedClient returns canned responses or errors in order.
type scriptedClient struct {
	responses []Response
	errs      []error
	calls     int
}

func (c *scriptedClient) Complete(_ context.Context, _ Request) (Response, error) {
	i := c.calls
	c.calls++
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	var resp Response
	if i < len(c.responses) {
		resp = c.responses[i]
	}
	return resp, err
}

type slowClient struct{ delay time.Duration }

func (c *slowClient) Complete(ctx context.Context, _ Request) (Response, error) {
	select {
	case <-time.After(c.delay):
		return Response{Text: "поздний ответ"}, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

func TestGatewayReturnsModelText(t *testing.T) {
	client := &scriptedClient{responses: []Response{{Text: "Рекомендуем обратиться к неврологу"}}}
	g := NewGateway(client, GatewayConfig{}, logging.New("error"))

	text, ok := g.Complete(context.Background(), testMessages())
	assert.True(t, ok)
	assert.Equal(t, "Рекомендуем обратиться к неврологу", text)
}

func TestGatewayErrorYieldsFallbackText(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("boom")}}
	g := NewGateway(client, GatewayConfig{}, logging.New("error"))

	text, ok := g.Complete(context.Background(), testMessages())
	assert.False(t, ok)
	assert.Equal(t, DefaultFallbackText, text)
}

func TestGatewayEmptyReplyYieldsFallbackText(t *testing.T) {
	client := &scriptedClient{responses: []Response{{Text: "   "}}}
	g := NewGateway(client, GatewayConfig{FallbackText: "простите, попробуйте позже"}, logging.New("error"))

	text, ok := g.Complete(context.Background(), testMessages())
	assert.False(t, ok)
	assert.Equal(t, "простите, попробуйте позже", text)
}

func TestGatewayTimeoutYieldsFallbackText(t *testing.T) {
	g := NewGateway(&slowClient{delay: time.Second}, GatewayConfig{Timeout: 10 * time.Millisecond}, logging.New("error"))

	start := time.Now()
	text, ok := g.Complete(context.Background(), testMessages())
	assert.False(t, ok)
	assert.Equal(t, DefaultFallbackText, text)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFallbackClientUsesSecondary(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("primary down")}}
	secondary := &scriptedClient{responses: []Response{{Text: "ответ запасного"}}}
	c := NewFallbackClient(primary, secondary, logging.New("error"))

	resp, err := c.Complete(context.Background(), Request{Messages: testMessages()})
	assert.NoError(t, err)
	assert.Equal(t, "ответ запасного", resp.Text)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackClientPrimarySuccessSkipsSecondary(t *testing.T) {
	primary := &scriptedClient{responses: []Response{{Text: "ответ"}}}
	secondary := &scriptedClient{}
	c := NewFallbackClient(primary, secondary, logging.New("error"))

	resp, err := c.Complete(context.Background(), Request{Messages: testMessages()})
	assert.NoError(t, err)
	assert.Equal(t, "ответ", resp.Text)
	assert.Zero(t, secondary.calls)
}

func TestFallbackClientBothFail(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("primary down")}}
	secondary := &scriptedClient{errs: []error{errors.New("secondary down")}}
	c := NewFallbackClient(primary, secondary, logging.New("error"))

	_, err := c.Complete(context.Background(), Request{Messages: testMessages()})
	assert.ErrorContains(t, err, "secondary down")
}

func TestFallbackClientNoSecondary(t *testing.T) {
	primary := &scriptedClient{errs: []error{errors.New("primary down")}}
	c := NewFallbackClient(primary, nil, logging.New("error"))

	_, err := c.Complete(context.Background(), Request{Messages: testMessages()})
	assert.ErrorContains(t, err, "primary down")
}

package booking

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

// FakeConnector returns synthetic booking references without calling any
// external service. Enabled via ALLOW_FAKE_BOOKINGS for local development.
type FakeConnector struct {
	logger *logging.Logger
}

// NewFakeConnector creates the development connector.
func NewFakeConnector(logger *logging.Logger) *FakeConnector {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeConnector{logger: logger}
}

// CreateEvent logs the event and returns a synthetic reference.
func (c *FakeConnector) CreateEvent(_ context.Context, event Event) (string, error) {
	ref := fmt.Sprintf("fake-booking-%s", uuid.NewString())
	c.logger.Info("fake booking created",
		"summary", event.Summary,
		"start", event.Start,
		"end", event.End,
		"reference", ref,
	)
	return ref, nil
}

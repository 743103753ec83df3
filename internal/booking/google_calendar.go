package booking

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// GoogleCalendarConnector creates events through the Google Calendar API
// using service-account credentials. Credential refresh is owned by the
// oauth2 token source; every call gets a valid token.
type GoogleCalendarConnector struct {
	service    *calendar.Service
	calendarID string
	timeout    time.Duration
}

// GoogleCalendarConfig describes the calendar target.
type GoogleCalendarConfig struct {
	CredentialsFile string
	CalendarID      string
	Timeout         time.Duration
}

// NewGoogleCalendarConnector builds the connector. The credentials file must
// contain a service-account key with calendar scope.
func NewGoogleCalendarConnector(ctx context.Context, cfg GoogleCalendarConfig) (*GoogleCalendarConnector, error) {
	if strings.TrimSpace(cfg.CredentialsFile) == "" {
		return nil, errors.New("booking: credentials file required")
	}
	calendarID := cfg.CalendarID
	if strings.TrimSpace(calendarID) == "" {
		calendarID = "primary"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	keyData, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, &Error{Op: "read credentials", Cause: err}
	}
	creds, err := google.CredentialsFromJSON(ctx, keyData, calendar.CalendarScope)
	if err != nil {
		return nil, &Error{Op: "parse credentials", Cause: err}
	}

	service, err := calendar.NewService(ctx, option.WithTokenSource(creds.TokenSource))
	if err != nil {
		return nil, &Error{Op: "init calendar service", Cause: err}
	}

	return &GoogleCalendarConnector{
		service:    service,
		calendarID: calendarID,
		timeout:    timeout,
	}, nil
}

// CreateEvent inserts the event and returns its link as the booking
// reference.
func (c *GoogleCalendarConnector) CreateEvent(ctx context.Context, event Event) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	calendarID := event.CalendarID
	if calendarID == "" {
		calendarID = c.calendarID
	}

	created, err := c.service.Events.Insert(calendarID, toCalendarEvent(event)).Context(ctx).Do()
	if err != nil {
		return "", &Error{Op: "insert event", Cause: err}
	}

	if created.HtmlLink != "" {
		return created.HtmlLink, nil
	}
	return created.Id, nil
}

func toCalendarEvent(event Event) *calendar.Event {
	return &calendar.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start: &calendar.EventDateTime{
			DateTime: event.Start.Format(time.RFC3339),
			TimeZone: event.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: event.End.Format(time.RFC3339),
			TimeZone: event.Timezone,
		},
	}
}

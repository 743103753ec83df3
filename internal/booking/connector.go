// Package booking wraps the external calendar service behind a narrow
// connector interface. The at-most-once guarantee lives in the dialogue
// engine's booking-state guard; connectors only turn an event descriptor
// into a calendar entry or a typed failure.
package booking

import (
	"context"
	"fmt"
	"time"
)

// Event is the descriptor sent to the calendar service.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	CalendarID  string
}

// Error is the typed failure surfaced to the dialogue engine. It keeps the
// upstream cause for logs while the user only ever sees a natural-language
// reply.
type Error struct {
	Op    string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("booking: %s: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Connector creates calendar events. CreateEvent returns an opaque booking
// reference on success.
type Connector interface {
	CreateEvent(ctx context.Context, event Event) (string, error)
}

// BuildEvent assembles the appointment descriptor: a summary naming the
// patient and specialist, and a slot of the configured duration starting at
// the confirmed time.
func BuildEvent(patientName, specialist, symptoms string, start time.Time, duration time.Duration, timezone, calendarID string) Event {
	return Event{
		Summary:     fmt.Sprintf("Прием: %s, %s", patientName, specialist),
		Description: fmt.Sprintf("Пациент: %s. Симптомы: %s. Требует подтверждения.", patientName, symptoms),
		Start:       start,
		End:         start.Add(duration),
		Timezone:    timezone,
		CalendarID:  calendarID,
	}
}

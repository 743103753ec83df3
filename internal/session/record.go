// Package session owns the per-conversation state: the dialogue record, the
// store that persists it, and the per-session serialization discipline.
package session

import (
	"time"
)

// Step is the dialogue position of a session.
type Step string

const (
	StepAwaitingInfo         Step = "awaiting_info"
	StepClarifying           Step = "clarifying"
	StepAwaitingConfirmation Step = "awaiting_confirmation"
	StepClosed               Step = "closed"
)

// BookingState tracks the calendar side effect for a session.
// Transitions: not_booked -> in_progress -> {booked, failed}. A failed
// booking never returns to not_booked once confirmation intent was given.
type BookingState string

const (
	BookingNotBooked  BookingState = "not_booked"
	BookingInProgress BookingState = "in_progress"
	BookingBooked     BookingState = "booked"
	BookingFailed     BookingState = "failed"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one history entry.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Slots are the structured facts extracted over the dialogue.
type Slots struct {
	PatientName        string     `json:"patient_name,omitempty"`
	Symptoms           string     `json:"symptoms,omitempty"`
	Specialist         string     `json:"specialist,omitempty"`
	AppointmentTime    *time.Time `json:"appointment_time,omitempty"`
	ClarificationCount int        `json:"clarification_count"`
}

// Record is the unit of state for one conversation. It is mutated only by
// the dialogue engine, under the store's per-session serialization.
type Record struct {
	SessionID        string       `json:"session_id"`
	History          []Message    `json:"history"`
	Step             Step         `json:"step"`
	Slots            Slots        `json:"slots"`
	BookingState     BookingState `json:"booking_state"`
	BookingReference string       `json:"booking_reference,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// NewRecord creates a fresh record with the system prompt pinned as the
// first history entry.
func NewRecord(sessionID, systemPrompt string) *Record {
	now := time.Now().UTC()
	return &Record{
		SessionID:    sessionID,
		History:      []Message{{Role: RoleSystem, Text: systemPrompt}},
		Step:         StepAwaitingInfo,
		BookingState: BookingNotBooked,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Append adds a message to the history. History is append-only for the life
// of the session.
func (r *Record) Append(role, text string) {
	r.History = append(r.History, Message{Role: role, Text: text})
	r.UpdatedAt = time.Now().UTC()
}

// ReadyToConfirm reports whether both slots required for the confirmation
// step are present.
func (r *Record) ReadyToConfirm() bool {
	return r.Slots.Specialist != "" && r.Slots.AppointmentTime != nil
}

// Package dialogue implements the conversation-state machine: it consumes
// one inbound user message per turn, drives slot extraction, decides the
// next step, and owns the at-most-once booking side effect.
package dialogue

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avdeev-dm/triage-bot/internal/booking"
	"github.com/avdeev-dm/triage-bot/internal/extract"
	"github.com/avdeev-dm/triage-bot/internal/llm"
	"github.com/avdeev-dm/triage-bot/internal/observability/metrics"
	"github.com/avdeev-dm/triage-bot/internal/session"
	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

// Config carries the dialogue policy values.
type Config struct {
	SystemPrompt      string
	DefaultSpecialist string
	ClarificationCap  int
	ConfirmOffset     time.Duration
	EventDuration     time.Duration
	Timezone          string
	CalendarID        string
	Replies           Replies
}

// TurnResult is what one processed turn yields for the boundary layer.
type TurnResult struct {
	SessionID        string
	Reply            string
	Step             session.Step
	BookingState     session.BookingState
	BookingReference string
}

// partSplitRE splits the initial "Имя. Симптомы" message on the first
// period or comma.
var partSplitRE = regexp.MustCompile(`[.,]`)

// Engine is the single authoritative transition function over session
// records. All record mutation happens here, under a per-session lock, so
// two overlapping turns can never race the slots or the booking state.
type Engine struct {
	store     session.Store
	locks     *session.KeyedMutex
	extractor *extract.Extractor
	gateway   *llm.Gateway
	connector booking.Connector
	archive   *session.Archive
	metrics   *metrics.DialogueMetrics
	cfg       Config
	loc       *time.Location
	logger    *logging.Logger
	tracer    trace.Tracer

	// now is swappable for tests.
	now func() time.Time
}

// NewEngine wires the state machine. store, gateway, and connector are
// required; archive and metrics may be nil.
func NewEngine(store session.Store, extractor *extract.Extractor, gateway *llm.Gateway, connector booking.Connector, archive *session.Archive, m *metrics.DialogueMetrics, cfg Config, logger *logging.Logger) *Engine {
	if store == nil {
		panic("dialogue: store cannot be nil")
	}
	if gateway == nil {
		panic("dialogue: gateway cannot be nil")
	}
	if connector == nil {
		panic("dialogue: connector cannot be nil")
	}
	if extractor == nil {
		extractor = extract.New(nil, nil)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ClarificationCap < 0 {
		cfg.ClarificationCap = 0
	}
	if cfg.ConfirmOffset <= 0 {
		cfg.ConfirmOffset = 3 * time.Hour
	}
	if cfg.EventDuration <= 0 {
		cfg.EventDuration = 30 * time.Minute
	}
	if cfg.DefaultSpecialist == "" {
		cfg.DefaultSpecialist = "терапевт"
	}
	if cfg.Replies == (Replies{}) {
		cfg.Replies = DefaultReplies()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		loc = time.UTC
	}
	return &Engine{
		store:     store,
		locks:     session.NewKeyedMutex(),
		extractor: extractor,
		gateway:   gateway,
		connector: connector,
		archive:   archive,
		metrics:   m,
		cfg:       cfg,
		loc:       loc,
		logger:    logger,
		tracer:    otel.Tracer("triagebot.internal.dialogue"),
		now:       time.Now,
	}
}

// HandleTurn processes one inbound message. An empty sessionID mints a new
// session; a closed session restarts from scratch under the same ID.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}

	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)

	ctx, span := e.tracer.Start(ctx, "dialogue.turn")
	defer span.End()
	span.SetAttributes(attribute.String("triagebot.session_id", sessionID))

	record, err := e.store.Load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if record == nil || record.Step == session.StepClosed {
		// A closed session is terminal; any further inbound message gets a
		// brand-new record under the same ID.
		record = session.NewRecord(sessionID, e.cfg.SystemPrompt)
	}

	reply := e.transition(ctx, record, strings.TrimSpace(text))

	if err := e.store.Save(ctx, record); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := e.archive.AppendTurn(ctx, sessionID, text, reply); err != nil {
		e.logger.Warn("failed to archive turn", "session_id", sessionID, "error", err)
	}
	if record.Step == session.StepClosed {
		if err := e.archive.MarkClosed(ctx, sessionID, record.BookingState, record.BookingReference); err != nil {
			e.logger.Warn("failed to archive dialogue outcome", "session_id", sessionID, "error", err)
		}
	}

	return &TurnResult{
		SessionID:        sessionID,
		Reply:            reply,
		Step:             record.Step,
		BookingState:     record.BookingState,
		BookingReference: record.BookingReference,
	}, nil
}

// Reset destroys the session record. The next turn under the same ID starts
// indistinguishable from a brand-new session.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	e.locks.Lock(sessionID)
	defer e.locks.Unlock(sessionID)
	return e.store.Delete(ctx, sessionID)
}

// transition applies one inbound message to the record and returns the
// outbound reply. Every failure resolves to a reply and a defined state,
// never a raised error.
func (e *Engine) transition(ctx context.Context, record *session.Record, text string) string {
	if text == "" {
		// First contact (or a bare ping): greet and ask for name + symptoms.
		record.Append(session.RoleAssistant, e.cfg.Replies.Greeting)
		e.metrics.ObserveTurn(string(record.Step), "greeting")
		return e.cfg.Replies.Greeting
	}

	switch record.Step {
	case session.StepAwaitingInfo:
		return e.handleAwaitingInfo(ctx, record, text)
	case session.StepClarifying:
		return e.handleClarifying(ctx, record, text)
	case session.StepAwaitingConfirmation:
		return e.handleConfirmation(ctx, record, text)
	default:
		// Unreachable: closed records are replaced before transition.
		record.Step = session.StepClosed
		return e.cfg.Replies.Declined
	}
}

func (e *Engine) handleAwaitingInfo(ctx context.Context, record *session.Record, text string) string {
	parts := partSplitRE.Split(text, 2)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		// Leave slots untouched and stay put; the user gets one more try
		// per turn, without a cap.
		record.Append(session.RoleUser, text)
		record.Append(session.RoleAssistant, e.cfg.Replies.FormatPrompt)
		e.metrics.ObserveTurn(string(session.StepAwaitingInfo), "format_error")
		return e.cfg.Replies.FormatPrompt
	}

	name := strings.TrimSpace(parts[0])
	if extracted, ok := e.extractor.Name(name); ok {
		name = extracted
	}
	record.Slots.PatientName = name
	record.Slots.Symptoms = strings.TrimSpace(parts[1])
	record.Append(session.RoleUser, text)
	record.Step = session.StepClarifying

	e.metrics.ObserveTurn(string(session.StepAwaitingInfo), "ok")
	return e.analyze(ctx, record)
}

func (e *Engine) handleClarifying(ctx context.Context, record *session.Record, text string) string {
	record.Slots.Symptoms += " " + text
	record.Append(session.RoleUser, text)
	e.metrics.ObserveTurn(string(session.StepClarifying), "ok")
	return e.analyze(ctx, record)
}

// analyze runs the model over the collected facts. A reply containing a
// question marker suspends the turn in the clarifying step, bounded by the
// clarification cap; otherwise the specialist and a candidate time are
// fixed and the session moves to the confirmation gate.
func (e *Engine) analyze(ctx context.Context, record *session.Record) string {
	messages := []llm.ChatMessage{
		{Role: llm.RoleSystem, Content: e.cfg.SystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Пациент: %s\nСимптомы: %s", record.Slots.PatientName, record.Slots.Symptoms)},
	}

	started := e.now()
	modelText, genuine := e.gateway.Complete(ctx, messages)
	e.metrics.ObserveModelLatency(e.now().Sub(started).Seconds())

	reply := extract.StripMarkdownFence(modelText)
	record.Append(session.RoleAssistant, reply)

	if genuine && strings.Contains(reply, "?") && record.Slots.ClarificationCount < e.cfg.ClarificationCap {
		record.Slots.ClarificationCount++
		record.Step = session.StepClarifying
		return reply
	}

	// Cap exhausted or no question: force a decision from what we have.
	specialist, ok := e.extractor.Specialist(reply)
	if !ok {
		specialist = e.cfg.DefaultSpecialist
	}
	record.Slots.Specialist = specialist

	now := e.now().In(e.loc)
	appointment, ok := e.extractor.Datetime(reply, now)
	if !ok {
		appointment = now.Add(e.cfg.ConfirmOffset)
	}
	record.Slots.AppointmentTime = &appointment
	record.Step = session.StepAwaitingConfirmation

	prompt := fmt.Sprintf(e.cfg.Replies.ConfirmPrompt, specialist, formatAppointment(appointment))
	record.Append(session.RoleAssistant, prompt)
	return prompt
}

func (e *Engine) handleConfirmation(ctx context.Context, record *session.Record, text string) string {
	record.Append(session.RoleUser, text)

	if !e.extractor.IsConfirmation(text) {
		// An explicit non-confirmation ends the flow; no retry loop.
		record.Step = session.StepClosed
		record.Append(session.RoleAssistant, e.cfg.Replies.Declined)
		e.metrics.ObserveTurn(string(session.StepAwaitingConfirmation), "declined")
		return e.cfg.Replies.Declined
	}

	reply := e.book(ctx, record)
	record.Step = session.StepClosed
	record.Append(session.RoleAssistant, reply)
	return reply
}

// book performs the booking sub-step. The booking_state guard makes the
// calendar call at-most-once per session: only a not_booked record may start
// an attempt, and the outcome is final for the session's life.
func (e *Engine) book(ctx context.Context, record *session.Record) string {
	if !record.ReadyToConfirm() {
		e.logger.Error("confirmation reached without required slots", "session_id", record.SessionID)
		e.metrics.ObserveBooking("rejected")
		return e.cfg.Replies.BookingFailed
	}
	if record.BookingState != session.BookingNotBooked {
		// A prior attempt already ran; never issue a second calendar call.
		e.metrics.ObserveBooking("duplicate_suppressed")
		if record.BookingState == session.BookingBooked {
			return fmt.Sprintf(e.cfg.Replies.Booked, record.Slots.Specialist, formatAppointment(record.Slots.AppointmentTime.In(e.loc)))
		}
		return e.cfg.Replies.BookingFailed
	}

	record.BookingState = session.BookingInProgress
	if err := e.store.Save(ctx, record); err != nil {
		// Could not persist the guard; fail the attempt rather than risk a
		// duplicate event later.
		e.logger.Error("failed to persist booking guard", "session_id", record.SessionID, "error", err)
		record.BookingState = session.BookingFailed
		e.metrics.ObserveBooking("failed")
		return e.cfg.Replies.BookingFailed
	}

	event := booking.BuildEvent(
		record.Slots.PatientName,
		record.Slots.Specialist,
		record.Slots.Symptoms,
		record.Slots.AppointmentTime.In(e.loc),
		e.cfg.EventDuration,
		e.loc.String(),
		e.cfg.CalendarID,
	)

	reference, err := e.connector.CreateEvent(ctx, event)
	if err != nil {
		e.logger.Error("calendar booking failed", "session_id", record.SessionID, "error", err)
		record.BookingState = session.BookingFailed
		e.metrics.ObserveBooking("failed")
		return e.cfg.Replies.BookingFailed
	}

	record.BookingState = session.BookingBooked
	record.BookingReference = reference
	e.metrics.ObserveBooking("booked")
	e.logger.Info("booking created",
		"session_id", record.SessionID,
		"specialist", record.Slots.Specialist,
		"start", event.Start,
		"reference", reference,
	)
	return fmt.Sprintf(e.cfg.Replies.Booked, record.Slots.Specialist, formatAppointment(event.Start))
}

func formatAppointment(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avdeev-dm/triage-bot/internal/booking"
	"github.com/avdeev-dm/triage-bot/internal/extract"
	"github.com/avdeev-dm/triage-bot/internal/llm"
	"github.com/avdeev-dm/triage-bot/internal/session"
	"github.com/avdeev-dm/triage-bot/pkg/logging"
)

// scriptedModel replays canned model replies in order, repeating the last
// one when the script runs out.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (m *scriptedModel) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return llm.Response{}, m.err
	}
	idx := m.calls - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return llm.Response{Text: m.replies[idx]}, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// countingConnector records every calendar call.
type countingConnector struct {
	mu     sync.Mutex
	events []booking.Event
	err    error
}

func (c *countingConnector) CreateEvent(_ context.Context, event booking.Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.events = append(c.events, event)
	return "https://calendar.example/evt-1", nil
}

func (c *countingConnector) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

type testEnv struct {
	engine    *Engine
	store     *session.MemoryStore
	model     *scriptedModel
	connector *countingConnector
	now       time.Time
}

func newTestEnv(t *testing.T, modelReplies []string) *testEnv {
	t.Helper()
	store := session.NewMemoryStore()
	model := &scriptedModel{replies: modelReplies}
	connector := &countingConnector{}
	gateway := llm.NewGateway(model, llm.GatewayConfig{}, logging.New("error"))

	engine := NewEngine(store, extract.New(nil, nil), gateway, connector, nil, nil, Config{
		SystemPrompt:      "системный промпт",
		DefaultSpecialist: "терапевт",
		ClarificationCap:  1,
		ConfirmOffset:     3 * time.Hour,
		EventDuration:     30 * time.Minute,
		Timezone:          "UTC",
	}, logging.New("error"))

	env := &testEnv{
		engine:    engine,
		store:     store,
		model:     model,
		connector: connector,
		now:       time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
	}
	engine.now = func() time.Time { return env.now }
	return env
}

func (env *testEnv) turn(t *testing.T, sessionID, text string) *TurnResult {
	t.Helper()
	result, err := env.engine.HandleTurn(context.Background(), sessionID, text)
	require.NoError(t, err)
	return result
}

const recommendNeurologist = "Рекомендуем обратиться к неврологу"

func TestEmptyMessageGreetsAndMintsSession(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})

	result := env.turn(t, "", "")

	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, DefaultReplies().Greeting, result.Reply)
	assert.Equal(t, session.StepAwaitingInfo, result.Step)
	assert.Zero(t, env.model.callCount())
}

func TestTwoPartMessageFillsSlotsAndCallsModel(t *testing.T) {
	env := newTestEnv(t, []string{"Как давно болит голова?"})

	result := env.turn(t, "sess-1", "Иван. Болит голова")

	record, err := env.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "Иван", record.Slots.PatientName)
	assert.Equal(t, "Болит голова", record.Slots.Symptoms)
	assert.Equal(t, session.StepClarifying, result.Step)
	assert.Equal(t, 1, env.model.callCount())
	assert.Equal(t, "Как давно болит голова?", result.Reply)
	assert.Equal(t, 1, record.Slots.ClarificationCount)
}

func TestMalformedFirstMessageKeepsSlotsUntouched(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})

	result := env.turn(t, "sess-1", "болит голова")

	record, err := env.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, session.StepAwaitingInfo, result.Step)
	assert.Empty(t, record.Slots.PatientName)
	assert.Empty(t, record.Slots.Symptoms)
	assert.Equal(t, DefaultReplies().FormatPrompt, result.Reply)
	assert.Zero(t, env.model.callCount())
}

func TestCommaSeparatorAccepted(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})

	result := env.turn(t, "sess-1", "Анна, кашель и температура")

	record, err := env.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Анна", record.Slots.PatientName)
	assert.Equal(t, "кашель и температура", record.Slots.Symptoms)
	assert.Equal(t, session.StepAwaitingConfirmation, result.Step)
}

func TestRecommendationMovesToConfirmation(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})

	result := env.turn(t, "sess-1", "Иван. Болит голова")

	record, err := env.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.StepAwaitingConfirmation, result.Step)
	assert.Equal(t, "невролог", record.Slots.Specialist)
	require.NotNil(t, record.Slots.AppointmentTime)
	assert.WithinDuration(t, env.now.Add(3*time.Hour), *record.Slots.AppointmentTime, 0)
	assert.Contains(t, result.Reply, "невролог")
	assert.Contains(t, result.Reply, "Подтвердите")
}

func TestAppointmentTimeExtractedFromModelReply(t *testing.T) {
	env := newTestEnv(t, []string{"Рекомендуем обратиться к неврологу. Предлагаем запись в 09:00."})

	env.turn(t, "sess-1", "Иван. Болит голова")

	record, err := env.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, record.Slots.AppointmentTime)
	// 09:00 is already past at now=14:00, so it rolls to the next day.
	assert.WithinDuration(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), *record.Slots.AppointmentTime, 0)
}

func TestClarificationCapForcesDecision(t *testing.T) {
	env := newTestEnv(t, []string{
		"Как давно болит голова?",
		"А есть ли температура?",
	})

	first := env.turn(t, "sess-1", "Иван. Болит голова")
	assert.Equal(t, session.StepClarifying, first.Step)

	// Second model reply also asks a question, but the cap (1) is reached:
	// the machine must force a specialist/time decision.
	second := env.turn(t, "sess-1", "уже неделю")

	record, err := env.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.StepAwaitingConfirmation, second.Step)
	assert.Equal(t, 1, record.Slots.ClarificationCount)
	assert.Equal(t, "терапевт", record.Slots.Specialist, "no specialist in the reply falls back to the default")
	assert.Equal(t, "Болит голова уже неделю", record.Slots.Symptoms)
}

func TestConfirmationBooksExactlyOnce(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})

	env.turn(t, "sess-1", "Иван. Болит голова")
	result := env.turn(t, "sess-1", "да, согласен")

	assert.Equal(t, session.StepClosed, result.Step)
	assert.Equal(t, session.BookingBooked, result.BookingState)
	assert.Equal(t, "https://calendar.example/evt-1", result.BookingReference)
	assert.Contains(t, result.Reply, "оформлена")

	require.Equal(t, 1, env.connector.callCount())
	event := env.connector.events[0]
	assert.Equal(t, "Прием: Иван, невролог", event.Summary)
	assert.WithinDuration(t, env.now.Add(3*time.Hour), event.Start, 0)
	assert.Equal(t, 30*time.Minute, event.End.Sub(event.Start))
}

func TestSecondConfirmationAfterBookedDoesNotRebook(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})

	env.turn(t, "sess-1", "Иван. Болит голова")
	env.turn(t, "sess-1", "да")

	// The session is closed; the same confirmation message starts a fresh
	// dialogue instead of re-triggering the booking.
	result := env.turn(t, "sess-1", "да")

	assert.Equal(t, 1, env.connector.callCount())
	assert.Equal(t, session.StepAwaitingInfo, result.Step)
	assert.Equal(t, session.BookingNotBooked, result.BookingState)
}

func TestBookedGuardSuppressesDuplicateCalendarCall(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})
	ctx := context.Background()

	// A record that somehow reached confirmation again while already booked
	// must not produce a second calendar event.
	record := session.NewRecord("sess-1", "prompt")
	record.Step = session.StepAwaitingConfirmation
	record.Slots.PatientName = "Иван"
	record.Slots.Symptoms = "болит голова"
	record.Slots.Specialist = "невролог"
	appt := env.now.Add(3 * time.Hour)
	record.Slots.AppointmentTime = &appt
	record.BookingState = session.BookingBooked
	record.BookingReference = "https://calendar.example/existing"
	require.NoError(t, env.store.Save(ctx, record))

	result := env.turn(t, "sess-1", "да")

	assert.Zero(t, env.connector.callCount())
	assert.Equal(t, session.BookingBooked, result.BookingState)
	assert.Contains(t, result.Reply, "оформлена")
}

func TestDeclineClosesWithSafetyFallback(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})

	env.turn(t, "sess-1", "Иван. Болит голова")
	result := env.turn(t, "sess-1", "нет, не сейчас")

	assert.Equal(t, session.StepClosed, result.Step)
	assert.Equal(t, session.BookingNotBooked, result.BookingState)
	assert.Equal(t, DefaultReplies().Declined, result.Reply)
	assert.Zero(t, env.connector.callCount())
}

func TestBookingFailureClosesSession(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})
	env.connector.err = errors.New("calendar unavailable")

	env.turn(t, "sess-1", "Иван. Болит голова")
	result := env.turn(t, "sess-1", "да")

	assert.Equal(t, session.StepClosed, result.Step)
	assert.Equal(t, session.BookingFailed, result.BookingState)
	assert.Equal(t, DefaultReplies().BookingFailed, result.Reply)

	// The same confirmation message must not retry the booking.
	env.connector.err = nil
	retry := env.turn(t, "sess-1", "да")
	assert.Zero(t, env.connector.callCount())
	assert.Equal(t, session.StepAwaitingInfo, retry.Step)
}

func TestModelFailureDegradesToDefaultDecision(t *testing.T) {
	env := newTestEnv(t, nil)
	env.model.err = errors.New("model down")

	result := env.turn(t, "sess-1", "Иван. Болит голова")

	// Fallback text has no question marker, so the machine proceeds to the
	// confirmation gate with the default specialist.
	record, err := env.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session.StepAwaitingConfirmation, result.Step)
	assert.Equal(t, "терапевт", record.Slots.Specialist)
}

func TestResetYieldsFreshSession(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})
	ctx := context.Background()

	env.turn(t, "sess-1", "Иван. Болит голова")
	require.NoError(t, env.engine.Reset(ctx, "sess-1"))

	record, err := env.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, record, "reset must leave no trace of the old session")

	result := env.turn(t, "sess-1", "Пётр. Болит спина")
	fresh, err := env.store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Пётр", fresh.Slots.PatientName)
	assert.Equal(t, "Болит спина", fresh.Slots.Symptoms)
	assert.NotContains(t, result.Reply, "Иван")
}

func TestConcurrentConfirmationsBookOnce(t *testing.T) {
	env := newTestEnv(t, []string{recommendNeurologist})

	env.turn(t, "sess-1", "Иван. Болит голова")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = env.engine.HandleTurn(context.Background(), "sess-1", "да")
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.connector.callCount(), "overlapping confirmations must produce one booking")
}

func TestMarkdownFencedReplyStillExtracts(t *testing.T) {
	env := newTestEnv(t, []string{"```\nРекомендуем обратиться к кардиологу\n```"})

	result := env.turn(t, "sess-1", "Анна. Боли в груди")

	record, err := env.store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "кардиолог", record.Slots.Specialist)
	assert.Equal(t, session.StepAwaitingConfirmation, result.Step)
}

package appointment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/client-portal-scheduling/internal/calendar"
	"github.com/hackgods/client-portal-scheduling/internal/config"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
	"github.com/hackgods/client-portal-scheduling/internal/notify"
	"github.com/hackgods/client-portal-scheduling/internal/token"
)

type fakeGateway struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (g *fakeGateway) Enqueue(_ context.Context, msg notify.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.msgs = append(g.msgs, msg)
	return nil
}

func (g *fakeGateway) sent() []notify.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]notify.Message(nil), g.msgs...)
}

func (g *fakeGateway) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
}

type harness struct {
	svc      *Service
	repo     *MemoryRepository
	gw       *fakeGateway
	clientID uuid.UUID
	now      time.Time
}

func testConfig() config.Config {
	return config.Config{
		Location:        time.UTC,
		ReminderOffsets: []int{20, 14, 7, 1},
		NotifyTimeout:   time.Second,
		PublicBaseURL:   "https://portal.example.com",
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRepo(t, nil)
}

// newHarnessWithRepo wires the service over wrap(repo) when wrap is set.
func newHarnessWithRepo(t *testing.T, wrap func(*MemoryRepository) Repository) *harness {
	t.Helper()

	h := &harness{
		repo: NewMemoryRepository(),
		gw:   &fakeGateway{},
		now:  time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC),
	}

	var repo Repository = h.repo
	if wrap != nil {
		repo = wrap(h.repo)
	}

	tokens := token.NewService(token.NewMemoryRepository())
	h.svc = NewService(repo, tokens, h.gw, testConfig(), logging.Discard(),
		WithClock(func() time.Time { return h.now }))

	h.clientID = h.addClient(t, "Ada Lovelace", "ada@example.com")
	return h
}

func (h *harness) addClient(t *testing.T, name, email string) uuid.UUID {
	t.Helper()
	c := Client{ID: uuid.New(), Name: name, Active: true}
	if email != "" {
		c.Email = &email
	}
	require.NoError(t, h.repo.CreateClient(context.Background(), c))
	return c.ID
}

func (h *harness) today() calendar.Date {
	return calendar.Today(h.now, time.UTC)
}

// in returns the date days from the harness's today.
func (h *harness) in(days int) string {
	return h.today().AddDays(days).String()
}

func (h *harness) appointment(t *testing.T, clientID uuid.UUID) *Appointment {
	t.Helper()
	c, err := h.repo.GetClient(context.Background(), clientID)
	require.NoError(t, err)
	return c.Appointment
}

func (h *harness) schedule(t *testing.T, clientID uuid.UUID, date, clock string) *ScheduleResult {
	t.Helper()
	res, err := h.svc.Schedule(context.Background(), clientID, ScheduleInput{Date: date, Time: clock, Location: "HQ"})
	require.NoError(t, err)
	return res
}

func TestSchedule_CreatesProposedAppointment(t *testing.T) {
	h := newHarness(t)

	res := h.schedule(t, h.clientID, "2025-03-10", "9:00")

	assert.True(t, res.EmailQueued)
	assert.Len(t, res.Token, 64)

	stored := h.appointment(t, h.clientID)
	require.NotNil(t, stored)
	assert.Equal(t, StatusProposed, stored.Status)
	assert.Equal(t, "2025-03-10", stored.Date.String())
	assert.Equal(t, "09:00", stored.Time)
	assert.Equal(t, "HQ", stored.Location)
	assert.Equal(t, res.Token, stored.Token)
	assert.Empty(t, stored.RemindersSent)
	assert.Nil(t, stored.ProposedDate)
	assert.Nil(t, stored.ProposedTime)

	msgs := h.gw.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ada@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].Body, "https://portal.example.com/appointments/invitation?token="+res.Token)
	assert.Contains(t, msgs[0].Body, "2025-03-10 at 09:00")

	events := h.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentScheduled, events[0].EventType)
	assert.Equal(t, h.clientID, events[0].ClientID)
}

func TestSchedule_IssuesUnseenTokens(t *testing.T) {
	h := newHarness(t)

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		res := h.schedule(t, h.clientID, h.in(10+i), "10:00")
		assert.False(t, seen[res.Token], "token reused")
		seen[res.Token] = true
	}
}

func TestSchedule_InvalidArgument(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		clock string
	}{
		{"impossible month", "2025-13-01", "09:00"},
		{"wrong layout", "10/03/2025", "09:00"},
		{"empty date", "", "09:00"},
		{"bad clock", "2025-03-10", "9am"},
		{"hour out of range", "2025-03-10", "25:00"},
		{"empty clock", "2025-03-10", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.svc.Schedule(context.Background(), h.clientID, ScheduleInput{Date: tt.date, Time: tt.clock})
			require.ErrorIs(t, err, ErrInvalidArgument)

			assert.Nil(t, h.appointment(t, h.clientID))
			assert.Empty(t, h.gw.sent())
		})
	}
}

func TestSchedule_UnknownClient(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Schedule(context.Background(), uuid.New(), ScheduleInput{Date: "2025-03-10", Time: "09:00"})
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestSchedule_EmailFailureKeepsAppointment(t *testing.T) {
	h := newHarness(t)
	h.gw.fail(errors.New("redis unavailable"))

	res := h.schedule(t, h.clientID, "2025-03-10", "09:00")

	assert.False(t, res.EmailQueued)
	stored := h.appointment(t, h.clientID)
	require.NotNil(t, stored)
	assert.Equal(t, res.Token, stored.Token)
	assert.Equal(t, StatusProposed, stored.Status)
}

func TestSchedule_ClientWithoutEmail(t *testing.T) {
	h := newHarness(t)
	id := h.addClient(t, "No Mail", "")

	res := h.schedule(t, id, "2025-03-10", "09:00")

	assert.False(t, res.EmailQueued)
	assert.NotNil(t, h.appointment(t, id))
	assert.Empty(t, h.gw.sent())
}

func TestConfirm_IsNotRepeatable(t *testing.T) {
	h := newHarness(t)
	res := h.schedule(t, h.clientID, "2025-03-10", "09:00")
	ctx := context.Background()

	appt, err := h.svc.Confirm(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, StatusConfirmed, h.appointment(t, h.clientID).Status)

	_, err = h.svc.Confirm(ctx, res.Token)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirm_UnknownToken(t *testing.T) {
	h := newHarness(t)
	h.schedule(t, h.clientID, "2025-03-10", "09:00")

	unknown, err := token.Generate()
	require.NoError(t, err)

	for _, tok := range []string{unknown, "not-a-token", ""} {
		_, err := h.svc.Confirm(context.Background(), tok)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestConfirm_SupersededTokenIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.schedule(t, h.clientID, "2025-03-10", "09:00")
	second, err := h.svc.Reschedule(ctx, h.clientID, ScheduleInput{Date: "2025-03-11", Time: "11:00"})
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	_, err = h.svc.Confirm(ctx, first.Token)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, StatusProposed, h.appointment(t, h.clientID).Status)

	appt, err := h.svc.Confirm(ctx, second.Token)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", appt.Date.String())
}

func TestConfirm_FromPendingChangeKeepsOriginalDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.schedule(t, h.clientID, "2025-03-10", "09:00")

	_, err := h.svc.ProposeNewDate(ctx, res.Token, "2025-03-12", "14:00")
	require.NoError(t, err)

	appt, err := h.svc.Confirm(ctx, res.Token)
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, "2025-03-10", appt.Date.String())
	assert.Equal(t, "09:00", appt.Time)
	assert.Nil(t, appt.ProposedDate)
	assert.Nil(t, appt.ProposedTime)
}

func TestProposeNewDate_ClearsRemindersAndKeepsDate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.schedule(t, h.clientID, "2025-03-21", "09:00")

	stored := h.appointment(t, h.clientID)
	stored.RemindersSent = []int{20}
	require.NoError(t, h.repo.SaveAppointment(ctx, h.clientID, *stored))

	appt, err := h.svc.ProposeNewDate(ctx, res.Token, "2025-03-24", "14:00")
	require.NoError(t, err)

	assert.Equal(t, StatusPendingChange, appt.Status)
	assert.Empty(t, appt.RemindersSent)
	assert.Equal(t, "2025-03-21", appt.Date.String())
	assert.Equal(t, "09:00", appt.Time)
	require.NotNil(t, appt.ProposedDate)
	require.NotNil(t, appt.ProposedTime)
	assert.Equal(t, "2025-03-24", appt.ProposedDate.String())
	assert.Equal(t, "14:00", *appt.ProposedTime)
	assert.Equal(t, res.Token, appt.Token)

	assert.Equal(t, appt, h.appointment(t, h.clientID))
}

func TestProposeNewDate_RevisionOverwritesProposal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.schedule(t, h.clientID, "2025-03-10", "09:00")

	_, err := h.svc.ProposeNewDate(ctx, res.Token, "2025-03-12", "14:00")
	require.NoError(t, err)
	appt, err := h.svc.ProposeNewDate(ctx, res.Token, "2025-03-13", "08:30")
	require.NoError(t, err)

	assert.Equal(t, "2025-03-13", appt.ProposedDate.String())
	assert.Equal(t, "08:30", *appt.ProposedTime)
}

func TestProposeNewDate_RequiresFutureDate(t *testing.T) {
	h := newHarness(t)
	res := h.schedule(t, h.clientID, "2025-03-10", "09:00")

	for _, date := range []string{h.in(0), h.in(-1), "2024-12-31"} {
		_, err := h.svc.ProposeNewDate(context.Background(), res.Token, date, "10:00")
		assert.ErrorIs(t, err, ErrInvalidArgument, "date %s", date)
	}
	assert.Equal(t, StatusProposed, h.appointment(t, h.clientID).Status)
}

func TestProposeNewDate_UnknownToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ProposeNewDate(context.Background(), strings.Repeat("ab", 32), "2025-03-12", "14:00")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAcceptProposal_Scenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.schedule(t, h.clientID, "2025-03-10", "09:00")
	assert.Equal(t, StatusProposed, res.Appointment.Status)

	proposed, err := h.svc.ProposeNewDate(ctx, res.Token, "2025-03-12", "14:00")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingChange, proposed.Status)
	assert.Equal(t, "2025-03-12", proposed.ProposedDate.String())

	accepted, err := h.svc.AcceptProposal(ctx, h.clientID)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-12", accepted.Date.String())
	assert.Equal(t, "14:00", accepted.Time)
	assert.Equal(t, StatusConfirmed, accepted.Status)
	assert.Nil(t, accepted.ProposedDate)
	assert.Nil(t, accepted.ProposedTime)
	assert.Empty(t, accepted.RemindersSent)
	assert.Equal(t, res.Token, accepted.Token)

	// only the original invitation went out
	assert.Len(t, h.gw.sent(), 1)

	var types []string
	for _, ev := range h.repo.Events() {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{
		EventAppointmentScheduled,
		EventAppointmentChangeProposed,
		EventAppointmentProposalAccepted,
	}, types)
}

func TestAcceptProposal_WithoutPendingChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.AcceptProposal(ctx, h.clientID)
	assert.ErrorIs(t, err, ErrInvalidState)

	h.schedule(t, h.clientID, "2025-03-10", "09:00")
	_, err = h.svc.AcceptProposal(ctx, h.clientID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.svc.AcceptProposal(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrClientNotFound)
}

func TestReschedule_ResetsRemindersAndToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.schedule(t, h.clientID, "2025-03-21", "09:00")
	_, err := h.svc.Confirm(ctx, first.Token)
	require.NoError(t, err)

	stored := h.appointment(t, h.clientID)
	stored.RemindersSent = []int{20, 14}
	require.NoError(t, h.repo.SaveAppointment(ctx, h.clientID, *stored))

	res, err := h.svc.Reschedule(ctx, h.clientID, ScheduleInput{Date: "2025-03-28", Time: "16:15", Location: "Remote"})
	require.NoError(t, err)

	assert.True(t, res.EmailQueued)
	assert.NotEqual(t, first.Token, res.Token)

	appt := h.appointment(t, h.clientID)
	assert.Equal(t, StatusProposed, appt.Status)
	assert.Empty(t, appt.RemindersSent)
	assert.Equal(t, "2025-03-28", appt.Date.String())
	assert.Equal(t, "Remote", appt.Location)

	msgs := h.gw.sent()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Subject, "rescheduled")
	assert.Contains(t, msgs[1].Body, res.Token)
}

func TestReschedule_WithoutAppointmentSendsInvitation(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Reschedule(context.Background(), h.clientID, ScheduleInput{Date: "2025-03-10", Time: "09:00"})
	require.NoError(t, err)
	assert.Equal(t, StatusProposed, res.Appointment.Status)

	msgs := h.gw.sent()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Subject, "proposal")
}

func TestReschedule_FromPendingChangeDropsProposal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.schedule(t, h.clientID, "2025-03-10", "09:00")
	_, err := h.svc.ProposeNewDate(ctx, res.Token, "2025-03-12", "14:00")
	require.NoError(t, err)

	_, err = h.svc.Reschedule(ctx, h.clientID, ScheduleInput{Date: "2025-03-14", Time: "10:00"})
	require.NoError(t, err)

	appt := h.appointment(t, h.clientID)
	assert.Equal(t, StatusProposed, appt.Status)
	assert.Nil(t, appt.ProposedDate)
	assert.Nil(t, appt.ProposedTime)
}

func TestViewInvitation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.schedule(t, h.clientID, "2025-03-10", "09:00")

	view, err := h.svc.ViewInvitation(ctx, first.Token)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", view.ClientName)
	assert.Equal(t, "2025-03-10", view.Appointment.Date.String())

	h.schedule(t, h.clientID, "2025-03-11", "09:00")
	_, err = h.svc.ViewInvitation(ctx, first.Token)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.svc.ViewInvitation(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestListUpcoming_SortedFromToday(t *testing.T) {
	h := newHarness(t)
	bob := h.addClient(t, "Bob", "bob@example.com")
	cy := h.addClient(t, "Cy", "cy@example.com")
	past := h.addClient(t, "Past", "past@example.com")
	h.addClient(t, "Unscheduled", "none@example.com")

	h.schedule(t, h.clientID, h.in(5), "09:00")
	h.schedule(t, bob, h.in(0), "15:00")
	h.schedule(t, cy, h.in(5), "08:00")
	h.schedule(t, past, h.in(-1), "10:00")

	list, err := h.svc.ListUpcoming(context.Background())
	require.NoError(t, err)

	var names []string
	for _, u := range list {
		names = append(names, u.ClientName)
	}
	assert.Equal(t, []string{"Bob", "Cy", "Ada Lovelace"}, names)
}

func TestEventLogFailureIsNotFatal(t *testing.T) {
	h := newHarnessWithRepo(t, func(r *MemoryRepository) Repository {
		return failingEvents{r}
	})

	res, err := h.svc.Schedule(context.Background(), h.clientID, ScheduleInput{Date: "2025-03-10", Time: "09:00"})
	require.NoError(t, err)
	assert.True(t, res.EmailQueued)
}

type failingEvents struct{ *MemoryRepository }

func (failingEvents) InsertEvent(context.Context, EventLog) error {
	return errors.New("event table missing")
}

package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/client-portal-scheduling/internal/calendar"
	"github.com/hackgods/client-portal-scheduling/internal/config"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
	"github.com/hackgods/client-portal-scheduling/internal/notify"
	"github.com/hackgods/client-portal-scheduling/internal/token"
)

const (
	EventAppointmentScheduled        = "APPOINTMENT_SCHEDULED"
	EventAppointmentRescheduled      = "APPOINTMENT_RESCHEDULED"
	EventAppointmentConfirmed        = "APPOINTMENT_CONFIRMED"
	EventAppointmentChangeProposed   = "APPOINTMENT_CHANGE_PROPOSED"
	EventAppointmentProposalAccepted = "APPOINTMENT_PROPOSAL_ACCEPTED"
	EventAppointmentReminderSent     = "APPOINTMENT_REMINDER_SENT"
)

// Tokens issues and resolves capability tokens.
type Tokens interface {
	Issue(ctx context.Context, clientID uuid.UUID) (string, error)
	Resolve(ctx context.Context, tok string) (uuid.UUID, error)
}

type Service struct {
	repo    Repository
	tokens  Tokens
	gateway notify.Gateway
	cfg     config.Config
	log     logging.Logger
	now     func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, tokens Tokens, gateway notify.Gateway, cfg config.Config, log logging.Logger, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	s := &Service{
		repo:    repo,
		tokens:  tokens,
		gateway: gateway,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleInput is the consultant's requested slot.
type ScheduleInput struct {
	Date     string
	Time     string
	Location string
}

// ScheduleResult reports the stored appointment and whether the email made
// it onto the outbox. A false EmailQueued never undoes the write.
type ScheduleResult struct {
	Appointment Appointment
	Token       string
	EmailQueued bool
}

func invalidArgument(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
}

func (s *Service) today() calendar.Date {
	return calendar.Today(s.now(), s.cfg.Location)
}

func parseSlot(date, clock string) (calendar.Date, string, error) {
	d, err := calendar.ParseDate(date)
	if err != nil {
		return calendar.Date{}, "", invalidArgument(err)
	}
	t, err := calendar.ParseClock(clock)
	if err != nil {
		return calendar.Date{}, "", invalidArgument(err)
	}
	return d, t, nil
}

// Schedule proposes a new appointment to the client, replacing any current
// one, and queues an invitation email.
func (s *Service) Schedule(ctx context.Context, clientID uuid.UUID, in ScheduleInput) (*ScheduleResult, error) {
	return s.schedule(ctx, clientID, in, EventAppointmentScheduled)
}

// Reschedule is Schedule from any state. The previous token stays resolvable
// but no longer matches the client's appointment.
func (s *Service) Reschedule(ctx context.Context, clientID uuid.UUID, in ScheduleInput) (*ScheduleResult, error) {
	return s.schedule(ctx, clientID, in, EventAppointmentRescheduled)
}

func (s *Service) schedule(ctx context.Context, clientID uuid.UUID, in ScheduleInput, event string) (*ScheduleResult, error) {
	date, clock, err := parseSlot(in.Date, in.Time)
	if err != nil {
		return nil, err
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	// The token record is written before the appointment so a stored
	// appointment always carries a resolvable token.
	tok, err := s.tokens.Issue(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	appt := Appointment{
		Date:          date,
		Time:          clock,
		Location:      strings.TrimSpace(in.Location),
		Status:        StatusProposed,
		Token:         tok,
		RemindersSent: []int{},
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.SaveAppointment(ctx, clientID, appt); err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("save appointment: %w", err)
	}

	s.logEvent(ctx, clientID, event, map[string]any{
		"date":     appt.Date.String(),
		"time":     appt.Time,
		"location": appt.Location,
	})

	build := notify.InvitationMessage
	if event == EventAppointmentRescheduled && client.Appointment != nil {
		build = notify.RescheduleMessage
	}
	msg, err := build(client.email(), s.invitation(client, appt))
	queued := false
	if err != nil {
		s.log.Error(ctx, "render invitation failed", "client_id", clientID, "error", err)
	} else {
		queued = s.enqueue(ctx, clientID, msg) == nil
	}

	return &ScheduleResult{Appointment: appt, Token: tok, EmailQueued: queued}, nil
}

// resolve maps a token to its client and current appointment. A token that
// resolves but is not the client's current one has been superseded.
func (s *Service) resolve(ctx context.Context, tok string) (*Client, *Appointment, error) {
	clientID, err := s.tokens.Resolve(ctx, tok)
	if err != nil {
		if errors.Is(err, token.ErrTokenNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("resolve token: %w", err)
	}

	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("load client: %w", err)
	}

	if client.Appointment == nil || client.Appointment.Token != tok {
		return nil, nil, fmt.Errorf("%w: appointment was superseded", ErrInvalidState)
	}
	return client, client.Appointment, nil
}

// Confirm accepts the proposed slot on the client's behalf. From
// pending_change it confirms the original date and drops the proposal.
func (s *Service) Confirm(ctx context.Context, tok string) (*Appointment, error) {
	client, appt, err := s.resolve(ctx, tok)
	if err != nil {
		return nil, err
	}

	switch appt.Status {
	case StatusProposed, StatusPendingChange:
	default:
		return nil, fmt.Errorf("%w: appointment is already %s", ErrInvalidState, appt.Status)
	}

	next := appt.Clone()
	next.Status = StatusConfirmed
	next.ProposedDate = nil
	next.ProposedTime = nil

	// The proposal cleared remindersSent but the date never changed, so the
	// offsets already sent for it must not fire again.
	if appt.Status == StatusPendingChange {
		sent, err := s.repo.SentReminderOffsets(ctx, client.ID, appt.Date, appt.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("load sent reminders: %w", err)
		}
		for _, o := range sent {
			if !next.ReminderSent(o) {
				next.RemindersSent = append(next.RemindersSent, o)
			}
		}
		slices.Sort(next.RemindersSent)
	}

	if err := s.repo.SaveAppointment(ctx, client.ID, next); err != nil {
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, client.ID, EventAppointmentConfirmed, map[string]any{
		"date": next.Date.String(),
		"time": next.Time,
		"from": string(appt.Status),
	})

	return &next, nil
}

// ProposeNewDate records the client's counter-proposal. The current date
// and time stay as they are until the consultant accepts.
func (s *Service) ProposeNewDate(ctx context.Context, tok, date, clock string) (*Appointment, error) {
	d, t, err := parseSlot(date, clock)
	if err != nil {
		return nil, err
	}
	if !d.After(s.today()) {
		return nil, invalidArgument(fmt.Errorf("proposed date %s is not in the future", d))
	}

	client, appt, err := s.resolve(ctx, tok)
	if err != nil {
		return nil, err
	}

	next := appt.Clone()
	next.Status = StatusPendingChange
	next.ProposedDate = &d
	next.ProposedTime = &t
	next.RemindersSent = []int{}

	if err := s.repo.SaveAppointment(ctx, client.ID, next); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	s.logEvent(ctx, client.ID, EventAppointmentChangeProposed, map[string]any{
		"date":          appt.Date.String(),
		"proposed_date": d.String(),
		"proposed_time": t,
	})

	return &next, nil
}

// AcceptProposal moves the appointment to the client's proposed slot. The
// token is kept and no email is sent.
func (s *Service) AcceptProposal(ctx context.Context, clientID uuid.UUID) (*Appointment, error) {
	client, err := s.repo.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load client: %w", err)
	}

	appt := client.Appointment
	if appt == nil {
		return nil, fmt.Errorf("%w: client has no appointment", ErrInvalidState)
	}
	if appt.Status != StatusPendingChange || appt.ProposedDate == nil || appt.ProposedTime == nil {
		return nil, fmt.Errorf("%w: no pending proposal", ErrInvalidState)
	}

	next := appt.Clone()
	next.Date = *appt.ProposedDate
	next.Time = *appt.ProposedTime
	next.Status = StatusConfirmed
	next.ProposedDate = nil
	next.ProposedTime = nil
	next.RemindersSent = []int{}

	if err := s.repo.SaveAppointment(ctx, clientID, next); err != nil {
		return nil, fmt.Errorf("accept proposal: %w", err)
	}

	s.logEvent(ctx, clientID, EventAppointmentProposalAccepted, map[string]any{
		"previous_date": appt.Date.String(),
		"date":          next.Date.String(),
		"time":          next.Time,
	})

	return &next, nil
}

// ViewInvitation returns what the email link points at.
func (s *Service) ViewInvitation(ctx context.Context, tok string) (*InvitationView, error) {
	client, appt, err := s.resolve(ctx, tok)
	if err != nil {
		return nil, err
	}
	return &InvitationView{ClientName: client.Name, Appointment: appt.Clone()}, nil
}

// ListUpcoming returns every current appointment from today on, ordered by
// date then time.
func (s *Service) ListUpcoming(ctx context.Context) ([]UpcomingAppointment, error) {
	clients, err := s.repo.ListScheduledClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scheduled clients: %w", err)
	}

	today := s.today()
	out := make([]UpcomingAppointment, 0, len(clients))
	for _, c := range clients {
		if c.Appointment == nil || c.Appointment.Date.Before(today) {
			continue
		}
		out = append(out, UpcomingAppointment{
			ClientID:    c.ID,
			ClientName:  c.Name,
			Appointment: c.Appointment.Clone(),
		})
	}

	slices.SortFunc(out, func(a, b UpcomingAppointment) int {
		switch {
		case a.Appointment.Date.Before(b.Appointment.Date):
			return -1
		case a.Appointment.Date.After(b.Appointment.Date):
			return 1
		}
		if c := strings.Compare(a.Appointment.Time, b.Appointment.Time); c != 0 {
			return c
		}
		return strings.Compare(a.ClientName, b.ClientName)
	})

	return out, nil
}

func (s *Service) invitation(c *Client, a Appointment) notify.Invitation {
	return notify.Invitation{
		ClientName: c.Name,
		Date:       a.Date.String(),
		Time:       a.Time,
		Location:   a.Location,
		DaysUntil:  a.Date.DaysSince(s.today()),
		Token:      a.Token,
		BaseURL:    s.cfg.PublicBaseURL,
	}
}

// enqueue hands msg to the gateway within NotifyTimeout. Failures are
// logged and returned; callers never roll back on them.
func (s *Service) enqueue(ctx context.Context, clientID uuid.UUID, msg notify.Message) error {
	if msg.To == "" {
		s.log.Warn(ctx, "client has no email address", "client_id", clientID)
		return notify.ErrNoRecipient
	}

	if s.cfg.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		defer cancel()
	}

	msg.QueuedAt = s.now().UTC()
	if err := s.gateway.Enqueue(ctx, msg); err != nil {
		s.log.Error(ctx, "enqueue email failed", "client_id", clientID, "subject", msg.Subject, "error", err)
		return err
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, clientID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn(ctx, "marshal event payload failed", "event", eventType, "error", err)
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		ClientID:  clientID,
		Payload:   data,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn(ctx, "insert event log failed", "event", eventType, "client_id", clientID, "error", err)
	}
}

package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/client-portal-scheduling/internal/calendar"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrInvalidToken    = errors.New("invalid or unknown token")
)

// Repository is the client document store. Every appointment write replaces
// the whole embedded Appointment; there is no compare-and-swap, so
// concurrent writers are last-write-wins.
type Repository interface {
	GetClient(ctx context.Context, id uuid.UUID) (*Client, error)

	// SaveAppointment replaces the client's appointment.
	SaveAppointment(ctx context.Context, clientID uuid.UUID, appt Appointment) error

	// ListScheduledClients scans active clients that currently hold an
	// appointment. Used by the calendar and the reminder run.
	ListScheduledClients(ctx context.Context) ([]Client, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error

	// SentReminderOffsets returns the offsets logged as sent for date since
	// the given instant, taken from APPOINTMENT_REMINDER_SENT events.
	SentReminderOffsets(ctx context.Context, clientID uuid.UUID, date calendar.Date, since time.Time) ([]int, error)
}

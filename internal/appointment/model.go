package appointment

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/client-portal-scheduling/internal/calendar"
)

type AppointmentStatus string

const (
	StatusProposed      AppointmentStatus = "proposed"
	StatusConfirmed     AppointmentStatus = "confirmed"
	StatusPendingChange AppointmentStatus = "pending_change"
)

// Client is the document that owns at most one Appointment.
type Client struct {
	ID          uuid.UUID
	Name        string
	Email       *string
	Active      bool
	Appointment *Appointment
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Appointment is stored embedded in its Client and is always written as a
// whole. There is no history: a schedule or reschedule replaces it.
type Appointment struct {
	Date          calendar.Date     `json:"date"`
	Time          string            `json:"time"`
	Location      string            `json:"location,omitempty"`
	Status        AppointmentStatus `json:"status"`
	ProposedDate  *calendar.Date    `json:"proposedDate,omitempty"`
	ProposedTime  *string           `json:"proposedTime,omitempty"`
	Token         string            `json:"token"`
	RemindersSent []int             `json:"remindersSent"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// ReminderSent reports whether the offset was already notified for the
// current date.
func (a *Appointment) ReminderSent(offset int) bool {
	return slices.Contains(a.RemindersSent, offset)
}

// Clone returns a deep copy so callers never share slices or pointers with
// a stored document.
func (a Appointment) Clone() Appointment {
	out := a
	out.RemindersSent = append([]int{}, a.RemindersSent...)
	if a.ProposedDate != nil {
		d := *a.ProposedDate
		out.ProposedDate = &d
	}
	if a.ProposedTime != nil {
		t := *a.ProposedTime
		out.ProposedTime = &t
	}
	return out
}

func (c Client) email() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}

type EventLog struct {
	ID        int64
	EventType string
	ClientID  uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// UpcomingAppointment is one row of the consultant calendar.
type UpcomingAppointment struct {
	ClientID    uuid.UUID
	ClientName  string
	Appointment Appointment
}

// InvitationView is what an email link shows to the anonymous client.
type InvitationView struct {
	ClientName  string
	Appointment Appointment
}

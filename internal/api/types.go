package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/client-portal-scheduling/internal/appointment"
)

// ScheduleRequest is the body of both schedule and reschedule.
type ScheduleRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Time     string `json:"time" validate:"required,datetime=15:04"`
	Location string `json:"location" validate:"max=200"`
}

type ConfirmRequest struct {
	Token string `json:"token" validate:"required"`
}

type ProposeRequest struct {
	Token string `json:"token" validate:"required"`
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Time  string `json:"time" validate:"required,datetime=15:04"`
}

// AppointmentResponse never carries the token; only the consultant who
// scheduled it sees that, in ScheduleResponse.
type AppointmentResponse struct {
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Location      string    `json:"location,omitempty"`
	Status        string    `json:"status"`
	ProposedDate  *string   `json:"proposedDate,omitempty"`
	ProposedTime  *string   `json:"proposedTime,omitempty"`
	RemindersSent []int     `json:"remindersSent"`
	CreatedAt     time.Time `json:"createdAt"`
}

const emailNotQueuedNotice = "appointment saved, email could not be queued; contact the client manually"

type ScheduleResponse struct {
	Token       string              `json:"token"`
	EmailQueued bool                `json:"emailQueued"`
	Notice      string              `json:"notice,omitempty"`
	Appointment AppointmentResponse `json:"appointment"`
}

type UpcomingResponse struct {
	ClientID    uuid.UUID           `json:"clientId"`
	ClientName  string              `json:"clientName"`
	Appointment AppointmentResponse `json:"appointment"`
}

type InvitationResponse struct {
	ClientName  string              `json:"clientName"`
	Appointment AppointmentResponse `json:"appointment"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		Date:          a.Date.String(),
		Time:          a.Time,
		Location:      a.Location,
		Status:        string(a.Status),
		ProposedTime:  a.ProposedTime,
		RemindersSent: a.RemindersSent,
		CreatedAt:     a.CreatedAt,
	}
	if a.ProposedDate != nil {
		d := a.ProposedDate.String()
		resp.ProposedDate = &d
	}
	if resp.RemindersSent == nil {
		resp.RemindersSent = []int{}
	}
	return resp
}

func toScheduleResponse(res *appointment.ScheduleResult) ScheduleResponse {
	resp := ScheduleResponse{
		Token:       res.Token,
		EmailQueued: res.EmailQueued,
		Appointment: toAppointmentResponse(res.Appointment),
	}
	if !res.EmailQueued {
		resp.Notice = emailNotQueuedNotice
	}
	return resp
}

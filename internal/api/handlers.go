package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/client-portal-scheduling/internal/appointment"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
)

// SchedulingService is what the handlers need from appointment.Service.
type SchedulingService interface {
	Schedule(ctx context.Context, clientID uuid.UUID, in appointment.ScheduleInput) (*appointment.ScheduleResult, error)
	Reschedule(ctx context.Context, clientID uuid.UUID, in appointment.ScheduleInput) (*appointment.ScheduleResult, error)
	AcceptProposal(ctx context.Context, clientID uuid.UUID) (*appointment.Appointment, error)
	Confirm(ctx context.Context, tok string) (*appointment.Appointment, error)
	ProposeNewDate(ctx context.Context, tok, date, clock string) (*appointment.Appointment, error)
	ViewInvitation(ctx context.Context, tok string) (*appointment.InvitationView, error)
	ListUpcoming(ctx context.Context) ([]appointment.UpcomingAppointment, error)
}

var _ SchedulingService = (*appointment.Service)(nil)

func clientIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_client_id", "clientID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

type scheduleFunc func(ctx context.Context, clientID uuid.UUID, in appointment.ScheduleInput) (*appointment.ScheduleResult, error)

// scheduleHandler serves both schedule and reschedule; they differ only in
// the event recorded and the email wording.
func scheduleHandler(fn scheduleFunc, log logging.Logger, status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, ok := clientIDParam(w, r)
		if !ok {
			return
		}

		var req ScheduleRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		res, err := fn(r.Context(), clientID, appointment.ScheduleInput{
			Date:     req.Date,
			Time:     req.Time,
			Location: req.Location,
		})
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, status, toScheduleResponse(res))
	}
}

func acceptProposalHandler(svc SchedulingService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID, ok := clientIDParam(w, r)
		if !ok {
			return
		}

		appt, err := svc.AcceptProposal(r.Context(), clientID)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func listUpcomingHandler(svc SchedulingService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListUpcoming(r.Context())
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		resp := make([]UpcomingResponse, 0, len(list))
		for _, u := range list {
			resp = append(resp, UpcomingResponse{
				ClientID:    u.ClientID,
				ClientName:  u.ClientName,
				Appointment: toAppointmentResponse(u.Appointment),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func viewInvitationHandler(svc SchedulingService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "token: required")
			return
		}

		view, err := svc.ViewInvitation(r.Context(), tok)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, InvitationResponse{
			ClientName:  view.ClientName,
			Appointment: toAppointmentResponse(view.Appointment),
		})
	}
}

func confirmHandler(svc SchedulingService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ConfirmRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		appt, err := svc.Confirm(r.Context(), req.Token)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func proposeHandler(svc SchedulingService, log logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProposeRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		appt, err := svc.ProposeNewDate(r.Context(), req.Token, req.Date, req.Time)
		if err != nil {
			handleServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, log logging.Logger, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, appointment.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "client_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidToken):
		writeError(w, http.StatusNotFound, "invalid_token", err.Error())
	case errors.Is(err, appointment.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	default:
		log.Error(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

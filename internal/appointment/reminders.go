package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/hackgods/client-portal-scheduling/internal/notify"
)

// RunReport summarises one reminder run.
type RunReport struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

var errStaleScan = errors.New("appointment changed since scan")

// reminderPayload is the event log payload of a sent reminder.
type reminderPayload struct {
	Date   string `json:"date"`
	Offset int    `json:"offset"`
}

// dueOffset returns the configured offset that falls on daysUntil and has
// not fired yet for the current date.
func (s *Service) dueOffset(appt *Appointment, daysUntil int) (int, bool) {
	for _, o := range s.cfg.ReminderOffsets {
		if o == daysUntil && !appt.ReminderSent(o) {
			return o, true
		}
	}
	return 0, false
}

// SendDueReminders runs one reminder pass. It is meant to be called
// periodically by the worker. Each offset fires at most once per
// appointment date; a day the worker did not run is not caught up.
// Failures for one client are logged and counted, never fatal to the run.
func (s *Service) SendDueReminders(ctx context.Context) (RunReport, error) {
	var report RunReport

	clients, err := s.repo.ListScheduledClients(ctx)
	if err != nil {
		return report, fmt.Errorf("list scheduled clients: %w", err)
	}

	today := s.today()
	for i := range clients {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		c := &clients[i]
		report.Scanned++

		appt := c.Appointment
		if appt == nil || appt.Status == StatusPendingChange {
			report.Skipped++
			continue
		}

		daysUntil := appt.Date.DaysSince(today)
		if daysUntil <= 0 {
			report.Skipped++
			continue
		}

		offset, ok := s.dueOffset(appt, daysUntil)
		if !ok {
			report.Skipped++
			continue
		}

		err := s.remind(ctx, c, offset)
		switch {
		case err == nil:
			report.Sent++
		case errors.Is(err, errStaleScan):
			s.log.Info(ctx, "reminder skipped, appointment changed", "client_id", c.ID, "offset", offset)
			report.Skipped++
		default:
			s.log.Error(ctx, "reminder failed", "client_id", c.ID, "offset", offset, "error", err)
			report.Failed++
		}
	}

	return report, nil
}

// remind sends the reminder for offset and records it. The client is
// re-read first so a reschedule or proposal that landed after the scan is
// not overwritten with the scanned copy.
func (s *Service) remind(ctx context.Context, scanned *Client, offset int) error {
	fresh, err := s.repo.GetClient(ctx, scanned.ID)
	if err != nil {
		return fmt.Errorf("reload client: %w", err)
	}

	appt := fresh.Appointment
	if appt == nil ||
		appt.Token != scanned.Appointment.Token ||
		appt.Date != scanned.Appointment.Date ||
		appt.Status == StatusPendingChange ||
		appt.ReminderSent(offset) {
		return errStaleScan
	}

	msg, err := notify.ReminderMessage(fresh.email(), s.invitation(fresh, *appt))
	if err != nil {
		return err
	}
	if err := s.enqueue(ctx, fresh.ID, msg); err != nil {
		return fmt.Errorf("enqueue reminder: %w", err)
	}

	next := appt.Clone()
	next.RemindersSent = append(next.RemindersSent, offset)
	if err := s.repo.SaveAppointment(ctx, fresh.ID, next); err != nil {
		return fmt.Errorf("mark reminder %d sent: %w", offset, err)
	}

	s.logEvent(ctx, fresh.ID, EventAppointmentReminderSent, map[string]any{
		"date":   appt.Date.String(),
		"offset": offset,
	})
	return nil
}

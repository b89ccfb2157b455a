package app

import (
	"context"
	"errors"
	"time"

	"github.com/hackgods/client-portal-scheduling/internal/appointment"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
	redisclient "github.com/hackgods/client-portal-scheduling/internal/redis"
)

// ReminderLockName is the run lock shared by all reminder-worker replicas.
const ReminderLockName = "reminders:run"

// ReminderRunner is the part of appointment.Service the worker drives.
type ReminderRunner interface {
	SendDueReminders(ctx context.Context) (appointment.RunReport, error)
}

// RunReminders performs one reminder pass under the run lock. When another
// replica holds the lock the pass is skipped and ran is false.
func RunReminders(ctx context.Context, locker redisclient.Locker, svc ReminderRunner, log logging.Logger) (report appointment.RunReport, ran bool, err error) {
	start := time.Now()

	err = locker.WithLock(ctx, ReminderLockName, func(lockCtx context.Context) error {
		ran = true
		var runErr error
		report, runErr = svc.SendDueReminders(lockCtx)
		return runErr
	})

	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		log.Info(ctx, "reminder run skipped, another worker holds the lock")
		return report, false, nil
	case err != nil:
		log.Error(ctx, "reminder run failed", "error", err, "scanned", report.Scanned, "sent", report.Sent)
		return report, ran, err
	}

	log.Info(ctx, "reminder run complete",
		"duration", time.Since(start),
		"scanned", report.Scanned,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, ran, nil
}

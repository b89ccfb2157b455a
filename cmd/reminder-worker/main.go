package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/client-portal-scheduling/internal/app"
	"github.com/hackgods/client-portal-scheduling/internal/appointment"
	"github.com/hackgods/client-portal-scheduling/internal/config"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
	"github.com/hackgods/client-portal-scheduling/internal/notify"
	redisclient "github.com/hackgods/client-portal-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", os.Stderr).Error(context.Background(), "config load error", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Env, os.Stdout).With("service", "reminder-worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StoreDriver == config.StoreDriverMemory {
		log.Error(rootCtx, "reminder-worker needs a shared store, STORE_DRIVER=memory is not supported")
		os.Exit(1)
	}

	log.Info(rootCtx, "reminder-worker starting up",
		"env", cfg.Env,
		"interval", cfg.WorkerInterval,
		"offsets", cfg.ReminderOffsets,
		"timezone", cfg.Location.String(),
	)

	store, err := app.OpenStore(rootCtx, cfg)
	if err != nil {
		log.Error(rootCtx, "store open error", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		log.Error(rootCtx, "redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn(context.Background(), "error closing redis", "error", err)
		}
	}()

	svc := app.NewService(store, notify.NewRedisQueue(rdb, cfg.MailQueueKey), cfg, log)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	// Run once at startup
	runOnce(rootCtx, locker, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info(context.Background(), "shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, locker, svc, log)
		}
	}
}

// runOnce is bounded by the lock TTL, so a slow run never outlives its lock.
func runOnce(ctx context.Context, locker redisclient.Locker, svc *appointment.Service, log logging.Logger) {
	_, _, _ = app.RunReminders(ctx, locker, svc, log)
}

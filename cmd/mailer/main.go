package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/client-portal-scheduling/internal/config"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
	"github.com/hackgods/client-portal-scheduling/internal/notify"
	redisclient "github.com/hackgods/client-portal-scheduling/internal/redis"
)

// mailer drains the Redis outbox and delivers over SMTP. Failed messages
// are parked on <MAIL_QUEUE_KEY>:failed.
func main() {
	cfg, err := config.LoadMailer()
	if err != nil {
		logging.New("dev", os.Stderr).Error(context.Background(), "config load error", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Env, os.Stdout).With("service", "mailer")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	queue := notify.NewRedisQueue(rdb, cfg.MailQueueKey)
	sender := notify.NewSMTPSender(cfg.SMTPAddr, cfg.MailFrom, cfg.SMTPUsername, cfg.SMTPPassword)

	log.Info(rootCtx, "mailer started", "queue", queue.Key(), "smtp", cfg.SMTPAddr)
	notify.Drain(rootCtx, queue, sender, log, 5*time.Second)
	log.Info(context.Background(), "mailer stopped")
}

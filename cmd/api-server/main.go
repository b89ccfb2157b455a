package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/client-portal-scheduling/internal/api"
	"github.com/hackgods/client-portal-scheduling/internal/app"
	"github.com/hackgods/client-portal-scheduling/internal/config"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
	"github.com/hackgods/client-portal-scheduling/internal/notify"
	redisclient "github.com/hackgods/client-portal-scheduling/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", os.Stderr).Error(context.Background(), "config load error", "error", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Env, os.Stdout).With("service", "api-server")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info(rootCtx, "api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "store", cfg.StoreDriver)

	store, err := app.OpenStore(rootCtx, cfg)
	if err != nil {
		log.Error(rootCtx, "store open error", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Redis must be up at startup. Later outages only turn emailQueued false.
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg)
	if err != nil {
		log.Error(rootCtx, "redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn(rootCtx, "error closing redis", "error", err)
		}
	}()

	queue := notify.NewRedisQueue(rdb, cfg.MailQueueKey)
	svc := app.NewService(store, queue, cfg, log)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:   svc,
			PgPool:    store.Pool,
			Redis:     rdb,
			Logger:    log,
			JWTSecret: cfg.JWTSecret,
			RateLimit: cfg.PublicRateLimit,
			RateBurst: cfg.PublicRateBurst,
			Env:       cfg.Env,
			Version:   version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(rootCtx, "http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		log.Info(context.Background(), "shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error(context.Background(), "http server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "graceful shutdown failed", "error", err)
	}
	log.Info(shutdownCtx, "api-server stopped")
}

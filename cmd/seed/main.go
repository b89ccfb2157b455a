package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/client-portal-scheduling/internal/app"
	"github.com/hackgods/client-portal-scheduling/internal/appointment"
	"github.com/hackgods/client-portal-scheduling/internal/auth"
	"github.com/hackgods/client-portal-scheduling/internal/config"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
)

// seed creates fake clients and prints a development consultant session.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev", os.Stderr).Error(context.Background(), "config load error", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env, os.Stdout).With("service", "seed")

	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Error(context.Background(), "seed needs STORE_DRIVER=postgres")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Error(ctx, "store open error", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	count := 500
	if v := os.Getenv("SEED_CLIENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	if err := seedClients(ctx, store.Clients, count, log); err != nil {
		log.Error(ctx, "seed clients", "error", err)
		os.Exit(1)
	}

	tok, err := auth.MakeToken("dev-consultant", auth.RoleConsultant, cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		log.Error(ctx, "mint consultant token", "error", err)
		os.Exit(1)
	}

	log.Info(ctx, "seed complete", "clients", count)
	fmt.Printf("consultant token (24h):\n%s\n", tok)
}

func seedClients(ctx context.Context, clients app.ClientStore, count int, log logging.Logger) error {
	log.Info(ctx, "seeding clients", "count", count)

	for i := 0; i < count; i++ {
		c := appointment.Client{
			ID:     uuid.New(),
			Name:   gofakeit.Name(),
			Active: gofakeit.Number(0, 9) > 0,
		}
		// a few clients have no address on file
		if gofakeit.Number(0, 19) > 0 {
			email := gofakeit.Email()
			c.Email = &email
		}

		if err := clients.CreateClient(ctx, c); err != nil {
			return err
		}

		if (i+1)%100 == 0 {
			log.Info(ctx, "clients seeded", "done", i+1, "total", count)
		}
	}
	return nil
}

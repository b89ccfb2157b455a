// Package app wires configuration into the store, the scheduling service
// and the reminder run shared by the commands.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/client-portal-scheduling/internal/appointment"
	"github.com/hackgods/client-portal-scheduling/internal/config"
	"github.com/hackgods/client-portal-scheduling/internal/db"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
	"github.com/hackgods/client-portal-scheduling/internal/notify"
	"github.com/hackgods/client-portal-scheduling/internal/token"
)

// ClientStore is an appointment.Repository that can also create clients.
// Only the seed command and tests create clients.
type ClientStore interface {
	appointment.Repository
	CreateClient(ctx context.Context, c appointment.Client) error
}

// Store bundles the repositories for the configured driver. Pool is nil
// for the memory driver.
type Store struct {
	Clients ClientStore
	Tokens  token.Repository
	Pool    *pgxpool.Pool
}

// OpenStore opens the store selected by cfg.StoreDriver. The memory driver
// keeps everything in process and is meant for local runs of a single
// api-server.
func OpenStore(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		return &Store{
			Clients: appointment.NewMemoryRepository(),
			Tokens:  token.NewMemoryRepository(),
		}, nil
	case config.StoreDriverPostgres, "":
		pgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		pool, err := db.Open(pgCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &Store{
			Clients: appointment.NewPgRepository(pool),
			Tokens:  token.NewPgRepository(pool),
			Pool:    pool,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// NewService builds the scheduling service on top of the store.
func NewService(s *Store, gateway notify.Gateway, cfg config.Config, log logging.Logger, opts ...appointment.Option) *appointment.Service {
	return appointment.NewService(s.Clients, token.NewService(s.Tokens), gateway, cfg, log, opts...)
}

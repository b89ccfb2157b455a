package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/client-portal-scheduling/internal/auth"
	"github.com/hackgods/client-portal-scheduling/internal/logging"
)

type RouterConfig struct {
	Service   SchedulingService
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Logger    logging.Logger
	JWTSecret string
	RateLimit float64
	RateBurst int
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	svc, log := cfg.Service, cfg.Logger

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// consultant endpoints: session required, writes need the consultant role
	r.Route("/consultant", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Get("/appointments/upcoming", listUpcomingHandler(svc, log))

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(auth.RoleConsultant))
			r.Post("/clients/{clientID}/appointment", scheduleHandler(svc.Schedule, log, http.StatusCreated))
			r.Put("/clients/{clientID}/appointment", scheduleHandler(svc.Reschedule, log, http.StatusOK))
			r.Post("/clients/{clientID}/appointment/accept", acceptProposalHandler(svc, log))
		})
	})

	// anonymous endpoints reached from email links; the token is the credential
	r.Route("/appointments", func(r chi.Router) {
		r.Use(RateLimit(NewRateLimiter(cfg.RateLimit, cfg.RateBurst)))

		r.Get("/invitation", viewInvitationHandler(svc, log))
		r.Post("/confirm", confirmHandler(svc, log))
		r.Post("/propose", proposeHandler(svc, log))
	})

	return r
}

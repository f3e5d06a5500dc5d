package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carewell/telemed-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service *appointment.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client // may be nil when the schedule lock is disabled
	Log     zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot and doctor queries carry no patient data and stay open.
	r.Get("/appointments/slots", slotsHandler(cfg.Service))
	r.Get("/doctors", listDoctorsHandler(cfg.Service))

	r.Group(func(r chi.Router) {
		r.Use(SessionMiddleware)

		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Post("/appointments", bookAppointmentHandler(cfg.Service))
		r.Put("/appointments", updateStatusHandler(cfg.Service))
		r.Patch("/appointments", modifyAppointmentHandler(cfg.Service))

		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Get("/appointments/{id}/audit", auditTrailHandler(cfg.Service))
		r.Post("/appointments/{id}/start-call", startCallHandler(cfg.Service))
		r.Post("/appointments/{id}/end-call", endCallHandler(cfg.Service))
	})

	return r
}

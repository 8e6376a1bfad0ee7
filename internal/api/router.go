package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Service BookingService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/payment", markPaidHandler(cfg.Service))
	r.Post("/appointments/{id}/read", markReadHandler(cfg.Service))
	r.Post("/appointments/{id}/summary", consultationSummaryHandler(cfg.Service))

	r.Get("/patients/{id}/booked-slots", patientBookedSlotsHandler(cfg.Service))
	r.Get("/patients/{id}/booked-dates", patientBookedDatesHandler(cfg.Service))

	r.Get("/doctors/{id}/slots", doctorSlotsHandler(cfg.Service))
	r.Post("/doctors/{id}/availability/toggle", toggleAvailabilityHandler(cfg.Service))
	r.Put("/doctors/{id}/day-off", dayOffHandler(cfg.Service))
	r.Post("/doctors/{id}/archive", archiveDoctorHandler(cfg.Service))

	r.Post("/availability/reconcile", reconcileHandler(cfg.Service))

	return r
}

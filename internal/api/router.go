package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/careloop/booking-engine/internal/booking"
	"github.com/careloop/booking-engine/internal/schedule"
	"github.com/careloop/booking-engine/internal/selfservice"
)

type RouterConfig struct {
	Bookings    *booking.Service
	SelfService *selfservice.Service
	Schedules   *schedule.Service
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Slot discovery and booking transactions
	r.Get("/services/{id}/slots", listSlotsHandler(cfg.Bookings))
	r.Post("/bookings", createBookingHandler(cfg.Bookings))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/confirm-payment", confirmPaymentHandler(cfg.Bookings))
	r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/reschedule", rescheduleBookingHandler(cfg.Bookings))

	// Patient self-service by public token
	r.Get("/self/bookings/{token}", resolveTokenHandler(cfg.SelfService))
	r.Post("/self/bookings/{token}/cancel", selfCancelHandler(cfg.SelfService))
	r.Post("/self/bookings/{token}/reschedule", selfRescheduleHandler(cfg.SelfService))

	// Schedule editing
	r.Post("/schedules", createScheduleHandler(cfg.Schedules))
	r.Delete("/schedules/{id}", deleteScheduleHandler(cfg.Schedules))
	r.Post("/schedules/{id}/blocks", addBlockHandler(cfg.Schedules))
	r.Post("/schedules/{id}/time-off", addTimeOffHandler(cfg.Schedules))
	r.Post("/schedules/{id}/overrides", addOverrideHandler(cfg.Schedules))

	return r
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plantcare/internal/auth"
	"plantcare/internal/config"
	"plantcare/internal/handlers"
	mw "plantcare/internal/http/middleware"
	"plantcare/internal/storage"
)

func NewRouter(cfg config.Config, h *handlers.Handler, jwtSvc *auth.JWT, members storage.MemberStore, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(mw.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/api/health", h.Health)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwtSvc))

		r.Route("/api/households/{householdID}", func(r chi.Router) {
			r.Use(auth.RequireMember(members, "householdID", logger))

			r.Get("/urgency", h.Urgency)
			r.Get("/upcoming", h.Upcoming)
			r.Post("/reminders/rebuild", h.RebuildReminders)
			r.Get("/alerts", h.PendingAlerts)
			r.Get("/stats", h.Stats)
		})

		r.Post("/api/plants/{plantID}/snooze", h.Snooze)
		r.Delete("/api/plants/{plantID}/snooze", h.ClearSnooze)

		r.Route("/api/notify", func(r chi.Router) {
			r.Post("/test", h.SendTest)
			r.Get("/log", h.DeliveryLog)
			r.Get("/summary", h.DeliverySummary)
		})
	})

	return r
}

// Package server exposes the terminal fleet over HTTP: one route group per
// terminal for swipes, keypresses, resets, and snapshots, plus health and
// metrics endpoints.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/cashpoint-io/atmd/internal/errors"
	"github.com/cashpoint-io/atmd/internal/health"
	"github.com/cashpoint-io/atmd/internal/idempotency"
	"github.com/cashpoint-io/atmd/internal/middleware"
	"github.com/cashpoint-io/atmd/internal/session"
	"github.com/cashpoint-io/atmd/pkg/logger"
)

// Options collects the dependencies of the HTTP surface. RateLimit,
// Idempotency, Events, and Checker may be nil; the corresponding feature is
// then disabled.
type Options struct {
	Manager        session.Manager
	Events         EventReader
	Checker        *health.Checker
	RateLimit      *middleware.RateLimitMiddleware
	Idempotency    idempotency.Manager
	IdempotencyTTL time.Duration
	SentryEnabled  bool
	Log            *slog.Logger
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(opts Options) *chi.Mux {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	h := &handler{
		manager: opts.Manager,
		events:  opts.Events,
		checker: opts.Checker,
		errs:    apperrors.NewHandler(log, opts.SentryEnabled),
		log:     log,
	}

	r := chi.NewRouter()
	r.Use(logger.Middleware)
	r.Use(middleware.New(log))
	r.Use(middleware.Metrics)

	r.Route("/v1/terminals/{terminalID}", func(r chi.Router) {
		actions := r
		if opts.RateLimit != nil {
			actions = actions.With(opts.RateLimit.Handle)
		}
		if opts.Idempotency != nil {
			actions = actions.With(middleware.Idempotency(opts.Idempotency, opts.IdempotencyTTL, log))
		}

		actions.Post("/swipe", h.swipe)
		actions.Post("/keys", h.pressKey)

		r.Post("/reset", h.reset)
		r.Get("/", h.snapshot)
		r.Get("/events", h.listEvents)
	})

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

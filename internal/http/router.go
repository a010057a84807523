package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ticketbay/settlement/internal/observability"
	"github.com/ticketbay/settlement/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(RateLimitMiddleware(rl))

	r.With(IdempotencyKeyRequired).Post("/v1/payments/verify", h.VerifyPayment)
	r.Post("/v1/payments/webhook/{provider}", h.ProviderWebhook)
	r.Get("/v1/transactions/{reference}", h.GetTransaction)
	r.Get("/v1/payouts/unreconciled", h.UnreconciledPayouts)
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

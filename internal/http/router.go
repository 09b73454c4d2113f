package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robertarktes/seatcheckout/internal/idempotency"
	"github.com/robertarktes/seatcheckout/internal/observability"
	"github.com/robertarktes/seatcheckout/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, auth *Authenticator, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(auth))
		r.Use(RateLimitMiddleware(rl))

		r.Post("/v1/sessions", h.OpenSession)
		r.Get("/v1/sessions/{id}", h.GetSession)
		r.Delete("/v1/sessions/{id}", h.CloseSession)
		r.Get("/v1/sessions/{id}/layout", h.GetSessionLayout)
		r.Post("/v1/sessions/{id}/seats/{seatID}/toggle", h.ToggleSeat)
		r.Put("/v1/sessions/{id}/points", h.SetPoints)
		r.Delete("/v1/sessions/{id}/selection", h.CancelSelection)

		r.Post("/v1/quotes/tickets", h.QuoteTickets)
		r.Post("/v1/quotes/venue", h.QuoteVenue)

		r.Get("/v1/conversion-rate", h.GetConversionRate)
		r.Post("/v1/conversion-rate/refresh", h.RefreshConversionRate)
		r.Get("/v1/receipts", h.ListReceipts)

		r.Group(func(r chi.Router) {
			r.Use(IdempotencyMiddleware(idemp))
			r.Post("/v1/sessions/{id}/commit", h.Commit)
			r.Post("/v1/bookings/tickets", h.BookTickets)
			r.Post("/v1/bookings/venue", h.BookVenue)
		})
	})

	return r
}

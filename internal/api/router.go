/**
 * @description
 * HTTP router setup for the billing service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nannygold/billing-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const requestTimeout = 120 * time.Second

// RouterConfig carries the secrets and origins the router needs.
type RouterConfig struct {
	InternalAPIKey string
	JWTSecret      string
	AllowedOrigins []string

	// RateLimiter throttles card setup per client; nil disables it.
	RateLimiter             RateLimiter
	PaymentMethodRatePerMin int
}

// NewRouter creates a new Chi router and registers billing routes.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	timeout := middleware.Timeout(requestTimeout)

	r.With(timeout).Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Billing service is healthy"))
	})
	r.With(timeout).Handle("/metrics", promhttp.Handler())

	r.Route("/internal/billing", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))

		// Sweeps outlive requestTimeout and are bounded by the scheduler's client.
		r.Post("/invoices/generate", h.handleGenerateInvoices)
		r.Post("/invoices/overdue/run", h.handleMarkOverdue)
		r.Post("/authorizations/run", h.handleRunAuthorizations)
		r.Post("/captures/run", h.handleRunCaptures)

		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Post("/quote", h.handleQuote)
			r.Route("/bookings/{id}", func(r chi.Router) {
				r.Get("/financials", h.handleGetFinancials)
				r.Post("/invoice", h.handleGenerateInvoice)
				r.Post("/authorize", h.handleAuthorizeSchedule)
				r.Post("/capture", h.handleCaptureSchedule)
				r.Post("/referral", h.handleTrackReferral)
				r.Post("/cancel", h.handleCancelBilling)
				r.Post("/schedule/pause", h.handlePauseSchedule)
				r.Post("/schedule/resume", h.handleResumeSchedule)
			})
		})
	})

	r.Route("/billing", func(r chi.Router) {
		r.Use(timeout)
		r.Use(JWTAuthMiddleware(cfg.JWTSecret))
		r.Get("/invoices", h.handleListInvoices)
		r.Get("/payments", h.handleListPayments)
		r.Get("/rewards", h.handleGetRewards)
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(cfg.RateLimiter, "payment_methods", cfg.PaymentMethodRatePerMin, time.Minute, h.logger))
			r.Post("/payment-methods/initialize", h.handleInitializePaymentMethod)
			r.Post("/payment-methods/verify", h.handleVerifyPaymentMethod)
		})
	})

	return r
}

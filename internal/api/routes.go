package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gatherhq/batch-jobs-service/internal/pkg/metrics"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/batch-jobs", func(r chi.Router) {
		r.Post("/subscription-renewal", h.TriggerSubscriptionRenewal)
		r.Post("/email", h.TriggerEmailBatch)
		r.Post("/email/test", h.TriggerTestEmail)
		r.Post("/stripe-fees-tax", h.TriggerFeesTaxBackfill)
		r.Post("/contact-form", h.TriggerContactForm)
		r.Post("/payment-summary", h.TriggerPaymentSummary)
		r.Post("/health", h.HealthCheck)

		r.Get("/executions", h.ListExecutions)
		r.Get("/executions/{id}", h.GetExecution)
	})

	return r
}

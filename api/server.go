/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     Structured request logging (zerolog)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/reports/*           Monthly and consolidated reports + lifecycle
  /api/advance-payments/*  Advance payment CRUD and linking
  /api/vendors etc.        Ledger record intake
  /api/reset               Database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/{year}", h.GetConsolidatedReport)
			r.Route("/{year}/{month}", func(r chi.Router) {
				r.Get("/", h.GetMonthlyReport)
				r.Get("/period", h.GetPeriod)
				r.Post("/finalize", h.FinalizePeriod)
				r.Post("/submit", h.SubmitPeriod)
			})
		})

		// Advance payment routes
		r.Route("/advance-payments", func(r chi.Router) {
			r.Get("/", h.ListAdvancePayments)
			r.Post("/", h.CreateAdvancePayment)
			r.Post("/{id}/link", h.LinkAdvancePayment)
			r.Post("/{id}/unlink", h.UnlinkAdvancePayment)
		})

		// Ledger record intake
		r.Post("/vendors", h.CreateVendor)
		r.Post("/payment-types", h.CreatePaymentType)
		r.Post("/invoices", h.CreateInvoice)
		r.Post("/payments", h.CreatePayment)
		r.Post("/credit-notes", h.CreateCreditNote)

		// Dev only
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}

// requestLogger attaches a request-scoped logger and emits one line per
// request with the final status and duration.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			reqLogger := logger.With().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("request_id", middleware.GetReqID(req.Context())).
				Logger()

			ctx := reqLogger.WithContext(req.Context())
			req = req.WithContext(ctx)

			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, req)

			reqLogger.Info().
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

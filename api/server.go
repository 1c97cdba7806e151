/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/master/*                         Shared reference data
  /api/incidents/{incidentID}/*         Per-incident records and operations
  /healthz                              Liveness probe

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// Shared reference data
		r.Route("/master", func(r chi.Router) {
			r.Route("/rates", func(r chi.Router) {
				r.Get("/", h.ListRateSchedules)
				r.Post("/", h.CreateRateSchedule)
			})
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Post("/", h.SaveAccount)
			})
			r.Route("/vendors", func(r chi.Router) {
				r.Get("/", h.ListVendors)
				r.Post("/", h.SaveVendor)
			})
			r.Route("/chains", func(r chi.Router) {
				r.Get("/", h.ListChainTemplates)
				r.Post("/", h.SaveChainTemplate)
			})
		})

		// Per-incident records
		r.Route("/incidents/{incidentID}", func(r chi.Router) {
			r.Route("/time-entries", func(r chi.Router) {
				r.Get("/", h.ListTimeEntries)
				r.Post("/", h.CreateTimeEntry)
				r.Get("/{id}", h.GetTimeEntry)
				r.Put("/{id}", h.UpdateTimeEntry)
				r.Post("/{id}/submit", h.SubmitTimeEntry)
				r.Post("/{id}/approve", h.ApproveTimeEntry)
				r.Post("/{id}/reject", h.RejectTimeEntry)
			})

			r.Route("/requisitions", func(r chi.Router) {
				r.Get("/", h.ListRequisitions)
				r.Post("/", h.CreateRequisition)
				r.Get("/{id}", h.GetRequisition)
				r.Post("/{id}/submit", h.SubmitRequisition)
			})

			r.Route("/approvals", func(r chi.Router) {
				r.Get("/", h.ListApprovals)
				r.Post("/", h.RecordApproval)
			})

			r.Route("/purchase-orders", func(r chi.Router) {
				r.Post("/", h.CreatePurchaseOrder)
				r.Get("/{id}", h.GetPurchaseOrder)
				r.Post("/{id}/receipts", h.ReceiveAgainstPO)
				r.Get("/{id}/receipts", h.ListReceipts)
				r.Post("/{id}/invoices", h.CreateInvoice)
				r.Get("/{id}/invoices", h.ListInvoices)
			})

			r.Post("/invoices/{id}/approve", h.ApproveInvoice)

			r.Route("/claims", func(r chi.Router) {
				r.Get("/", h.ListClaims)
				r.Post("/", h.CreateClaim)
				r.Get("/{id}", h.GetClaim)
				r.Post("/{id}/submit", h.SubmitClaim)
				r.Post("/{id}/pay", h.PayClaim)
			})

			r.Route("/costs", func(r chi.Router) {
				r.Get("/", h.ListCostEntries)
				r.Post("/", h.PostCostEntry)
				r.Post("/finalize", h.FinalizeDay)
				r.Get("/summary", h.GetDailySummary)
			})

			r.Route("/budgets", func(r chi.Router) {
				r.Get("/", h.ListBudgets)
				r.Post("/", h.SaveBudget)
			})
		})
	})

	return r
}

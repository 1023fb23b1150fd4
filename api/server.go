/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the POS frontend
  5. auth:       JWT bearer authentication on /api

ROUTE GROUPS:
  /api/shifts/*     Shift lifecycle, movements, history
  /api/admin/*      Emergency close (admin role only)
  /api/operators/*  Till operator registry
  /api/sales/*      Sales-pipeline stand-in
  /healthz          Unauthenticated liveness probe

AUTHORIZATION:
  Everything under /api requires a valid bearer token. /api/admin
  additionally requires the admin role; emergency close is a separate
  capability, never reachable through the regular close route.

SEE ALSO:
  - handlers.go: handler implementations
  - auth/auth.go: the middleware mounted here
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/compucol89/kiosco-sub004/auth"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, jwtSecret string) *chi.Mux {
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

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(jwtSecret))

		// Shift routes
		r.Route("/shifts", func(r chi.Router) {
			r.Get("/active", h.GetActiveShift)
			r.Get("/history", h.GetHistory)
			r.Post("/open", h.OpenShift)
			r.Post("/close", h.CloseShift)
			r.Post("/movements", h.RecordMovement)
			r.Get("/{id}", h.GetShift)
			r.Get("/{id}/movements", h.ListMovements)
			r.Post("/{id}/notes", h.AppendNote)
		})

		// Admin routes (separate capability, role-gated)
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Post("/shifts/emergency-close", h.EmergencyClose)
		})

		// Operator registry
		r.Route("/operators", func(r chi.Router) {
			r.Get("/", h.ListOperators)
			r.Post("/", h.CreateOperator)
			r.Get("/{id}", h.GetOperator)
		})

		// Sales (pipeline stand-in)
		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.RecordSale)
			r.Post("/{id}/void", h.VoidSale)
		})
	})

	return r
}

/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Timeout:    Per-request deadline
  6. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /healthz              Liveness and database ping (no auth)
  /api/scenarios/*      Demo scenarios (no auth)
  /api/admin/*          Directory seeding, sweeper trigger (no auth)
  /api/*                Everything else, acting party required

SECURITY NOTE:
  Admin and scenario routes are unauthenticated and meant for local and
  demo deployments. PATCH /api/settlements/{id}/status only requires an
  acting party, not one on the settlement; a provider webhook in front of
  it has to verify its own signature.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Acting party resolution
  - cmd/splitledger/serve.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the router settings that come from configuration.
type RouterConfig struct {
	CORSOrigins    []string
	Auth           *Authenticator
	RequestTimeout time.Duration
	// Ping backs /healthz; nil reports healthy unconditionally.
	Ping func(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	if cfg.Auth == nil {
		cfg.Auth = NewAuthenticator("")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", PartyHeader},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthz(cfg.Ping))

	r.Route("/api", func(r chi.Router) {
		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/parties", h.ListParties)
			r.Post("/parties", h.CreateParty)
			r.Post("/groups", h.CreateGroup)
			r.Post("/sweep", h.TriggerSweep)
		})

		r.Group(func(r chi.Router) {
			r.Use(cfg.Auth.Middleware)

			r.Post("/expenses", h.CreateExpense)

			r.Route("/settlements", func(r chi.Router) {
				r.Post("/", h.CreateSettlement)
				r.Patch("/{id}/status", h.UpdateSettlementStatus)
			})

			r.Route("/entries", func(r chi.Router) {
				r.Get("/{id}", h.GetEntry)
				r.Delete("/{id}", h.DeleteEntry)
				r.Post("/{id}/restore", h.RestoreEntry)
			})

			r.Route("/groups/{id}", func(r chi.Router) {
				r.Get("/entries", h.ListGroupEntries)
				r.Get("/balances", h.GetGroupBalances)
				r.Get("/settle-up", h.GetGroupSettleUp)
			})

			r.Route("/direct/{party}", func(r chi.Router) {
				r.Get("/entries", h.ListDirectEntries)
				r.Get("/balances", h.GetDirectBalances)
			})

			r.Route("/me", func(r chi.Router) {
				r.Get("/entries", h.ListMyEntries)
				r.Get("/balances", h.GetMyBalances)
				r.Get("/deleted", h.ListMyDeleted)
				r.Get("/activity", h.ListMyActivity)
			})
		})
	})

	return r
}

func healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

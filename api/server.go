/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Requests:   zerolog request logging (logging package)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. User:       Resolves the calling user, 401 without one (/api only)

ROUTE GROUPS:
  /api/wallets/*        Wallets, recalculation, drift
  /api/transactions/*   Ledger, grouped purchases, children
  /api/installments/*   Installment plans and payments
  /api/rules, /api/suggestions   Smart categorization
  /api/scenarios/*      Demo data for the calling user
  /healthz              Liveness (no user required)

SECURITY NOTE:
  The user id is taken on trust from the X-User-ID header (or userId query
  parameter). Put an authenticating proxy in front in production.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/warp/wallet-engine/ledger"
	"github.com/warp/wallet-engine/logging"
)

// UserHeader carries the calling user's id.
const UserHeader = "X-User-ID"

type userKey struct{}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger         zerolog.Logger
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Requests(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: !(len(origins) == 1 && origins[0] == "*"),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)

		// Wallet routes
		r.Route("/wallets", func(r chi.Router) {
			r.Get("/", h.ListWallets)
			r.Post("/", h.CreateWallet)
			r.Post("/reconcile", h.ReconcileWallets)
			r.Get("/{id}", h.GetWallet)
			r.Put("/{id}", h.UpdateWallet)
			r.Delete("/{id}", h.DeleteWallet)
			r.Post("/{id}/recalculate", h.RecalculateWallet)
			r.Get("/{id}/drift", h.GetDrift)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Post("/", h.CreateTransaction)
			r.Post("/grouped", h.CreateGrouped)
			r.Get("/{id}", h.GetTransaction)
			r.Put("/{id}", h.UpdateTransaction)
			r.Delete("/{id}", h.DeleteTransaction)
			r.Get("/{id}/children", h.ListChildren)
			r.Post("/{id}/children", h.AddChild)
			r.Put("/{id}/children/{childId}", h.UpdateChild)
			r.Delete("/{id}/children/{childId}", h.DeleteChild)
		})

		// Installment routes
		r.Route("/installments", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Post("/", h.CreatePlan)
			r.Post("/migrate", h.MigrateOrphans)
			r.Get("/{id}", h.GetPlan)
			r.Post("/{id}/pay", h.PayInstallment)
		})

		// Smart categorization
		r.Get("/rules", h.ListRules)
		r.Post("/rules", h.SaveRule)
		r.Get("/suggestions", h.Suggest)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// requireUser resolves the user from the X-User-ID header, falling back to
// the userId query parameter, and answers 401 when neither is present.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		if user == "" {
			user = strings.TrimSpace(r.URL.Query().Get("userId"))
		}
		if user == "" {
			writeError(w, http.StatusUnauthorized, "Missing user", nil)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, ledger.UserID(user))
		l := logging.FromContext(ctx).With().Str("user_id", user).Logger()
		next.ServeHTTP(w, r.WithContext(logging.WithContext(ctx, l)))
	})
}

func userFrom(r *http.Request) ledger.UserID {
	id, _ := r.Context().Value(userKey{}).(ledger.UserID)
	return id
}

package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/opsledger/opsledger/internal/auth"
	"github.com/opsledger/opsledger/internal/expenses"
	"github.com/opsledger/opsledger/internal/observability"
	"github.com/opsledger/opsledger/internal/rates"
	"github.com/opsledger/opsledger/internal/tracking"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthHandler     *auth.Handler
	AuthMiddleware  *auth.Middleware
	TrackingHandler *tracking.Handler
	RatesHandler    *rates.Handler
	ExpensesHandler *expenses.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with OpsLedger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.Authenticate)

		// Timer operations are open to internal staff.
		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.RequireInternal)
			params.TrackingHandler.MountRoutes(r)
		})

		// Rates and expenses are finance territory.
		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.RequireFinance)
			r.Route("/rates", params.RatesHandler.MountRoutes)
			r.Route("/expenses", params.ExpensesHandler.MountRoutes)
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

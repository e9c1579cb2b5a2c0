// Package httptransport assembles the public HTTP surface: middleware chain,
// API routes, health, and Prometheus metrics. Handlers stay thin and delegate
// to the ingestion and dedupe services.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dedupehandler "registro/internal/dedupe/handler"
	ingesthandler "registro/internal/ingest/handler"
	"registro/pkg/platform/middleware/auth"
	"registro/pkg/platform/middleware/requestid"
	"registro/pkg/platform/middleware/requesttime"
)

// Deps carries everything the router mounts.
type Deps struct {
	Ingest     ingesthandler.Service
	Dedupe     dedupehandler.Service
	Auth       *auth.Middleware
	Logger     *slog.Logger
	HealthFunc func(r *http.Request) error
}

// NewRouter wires the middleware chain and all API routes.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", healthHandler(deps.HealthFunc))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Handler)
		}
		ingesthandler.New(deps.Ingest, deps.Logger).Register(r)
		dedupehandler.New(deps.Dedupe, deps.Logger).Register(r)
	})

	return r
}

func healthHandler(check func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

// Package httptransport assembles the public HTTP surface: plan and search
// endpoints, health, and metrics, behind the shared middleware chain.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"planhub/pkg/platform/httputil"

	planhandler "planhub/internal/plan/handler"
	"planhub/internal/platform/metrics"
	"planhub/internal/platform/middleware"
	searchhandler "planhub/internal/search/handler"
)

// HealthChecker reports the health of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Plans   *planhandler.Handler
	Search  *searchhandler.Handler
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Health maps a dependency name to its checker. Nil checkers are
	// skipped so optional backends (a disabled broker in dev) stay out of
	// the report.
	Health map[string]HealthChecker

	RequestTimeout time.Duration
}

// NewRouter wires all public endpoints behind the middleware chain.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.LatencyMiddleware(deps.Metrics))
	}
	if deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.RequestTimeout))
	}
	r.Use(middleware.ContentTypeJSON)

	deps.Plans.Register(r)
	deps.Search.Register(r)

	r.Get("/healthz", healthHandler(deps.Health))
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// healthHandler reports per-dependency health. Any failing dependency makes
// the whole report 503 so orchestrators stop routing to this instance.
func healthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checkers))
		for name, checker := range checkers {
			if checker == nil {
				continue
			}
			if err := checker.Health(ctx); err != nil {
				report[name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		httputil.WriteJSON(w, status, report)
	}
}

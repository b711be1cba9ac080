package router

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/swiftlogix/order-pipeline/internal/config"
	ourmw "github.com/swiftlogix/order-pipeline/internal/transport/http/middleware"

	"github.com/swiftlogix/order-pipeline/internal/infrastructure/metrics"
	"github.com/swiftlogix/order-pipeline/internal/transport/http/handlers"
)

// BrokerConn is the slice of *rabbitmq.Publisher the readiness check needs,
// kept as a narrow interface so the transport layer doesn't import the
// broker package.
type BrokerConn interface {
	IsConnected() bool
}

// New wires the operational HTTP surface. This service has no client-facing
// REST API of its own; the only surface is health, readiness and
// Prometheus scraping.
func New(
	health *handlers.HealthHandler,
	db *sql.DB,
	rabbit BrokerConn,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	r.Use(ourmw.RequestID)
	r.Use(ourmw.Metrics)
	r.Use(ourmw.SecurityHeaders)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(ourmw.AccessLog)

	if cfg.RLEnabled {
		r.Use(httprate.LimitByIP(cfg.RLLimit, cfg.RLWindow))
	}

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", readyzHandler(db, rabbit))
	r.Handle("/metrics", metrics.Handler())

	return r
}

func readyzHandler(db *sql.DB, rabbit BrokerConn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		allHealthy := true

		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				checks["database"] = "unhealthy: " + err.Error()
				allHealthy = false
			} else {
				checks["database"] = "healthy"
			}
		} else {
			checks["database"] = "not_configured"
			allHealthy = false
		}

		if rabbit != nil {
			if rabbit.IsConnected() {
				checks["rabbitmq"] = "healthy"
			} else {
				checks["rabbitmq"] = "unhealthy: connection closed"
				allHealthy = false
			}
		} else {
			checks["rabbitmq"] = "not_configured"
			allHealthy = false
		}

		checks["status"] = "ready"
		w.Header().Set("Content-Type", "application/json")
		if !allHealthy {
			checks["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(checks)
	}
}

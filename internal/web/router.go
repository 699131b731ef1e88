package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"restaurant-pos/internal/logger"
)

// Routes is implemented by every service handler.
type Routes interface {
	Register(mux *http.ServeMux)
}

// Pinger is a dependency probed by the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter mounts the service routes behind identity resolution and the
// health endpoint in front of it, then wraps everything in request logging.
func NewRouter(log *logger.Logger, deps map[string]Pinger, routes ...Routes) http.Handler {
	api := http.NewServeMux()
	for _, r := range routes {
		r.Register(api)
	}

	root := http.NewServeMux()
	root.Handle("GET /health", HealthCheck(deps))
	root.Handle("/", RequireIdentity(log, api))
	return WithLogging(log, root)
}

// HealthCheck reports 200 when every dependency answers its ping.
func HealthCheck(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string, len(deps))
		healthy := true
		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		response := map[string]any{
			"status":     "ok",
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"service":    "pos-service",
			"healthy":    healthy,
			"checks":     checks,
			"request_id": logger.RequestIDFromContext(r.Context()),
		}

		w.Header().Set("Content-Type", "application/json")
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"restaurant-pos/internal/apperr"
	"restaurant-pos/internal/auth"
	"restaurant-pos/internal/logger"
)

// Identity headers set by the authenticating proxy in front of the API.
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"
)

// WithLogging assigns a request id and logs every request with its outcome.
func WithLogging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		r = r.WithContext(logger.WithRequestID(r.Context(), requestID))
		w.Header().Set(HeaderRequestID, requestID)

		log.Debug("request_started",
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			requestID,
			map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		log.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, rw.statusCode),
			requestID,
			map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			})
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequireIdentity turns the proxy headers into an auth.Identity. Requests
// without a usable tenant are rejected before they reach a handler.
func RequireIdentity(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(HeaderTenantID))
		if tenant == "" {
			WriteError(w, r, log, auth.ErrNoIdentity)
			return
		}
		if !auth.ValidTenantID(tenant) {
			WriteError(w, r, log, apperr.FieldValidation(HeaderTenantID, "malformed tenant id"))
			return
		}

		id := auth.Identity{
			TenantID: tenant,
			UserID:   strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Role:     auth.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

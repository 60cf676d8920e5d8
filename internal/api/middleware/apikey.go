package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// apiKeyHeader carries the dashboard API key. WebSocket clients may pass it
// as the api_key query parameter instead, since browsers cannot set headers
// on WebSocket upgrades.
const (
	apiKeyHeader = "X-API-Key"
	apiKeyQuery  = "api_key"
)

// authEnvelope mirrors the api package's response envelope for errors
// written by middleware, avoiding a circular import.
type authEnvelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeMiddlewareError emits an envelope error from inside the middleware
// stack.
func writeMiddlewareError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(authEnvelope{Error: msg}) //nolint:errcheck
}

// RequireAPIKey returns middleware that checks the dashboard API key on
// every request. An empty configured key disables authentication.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := r.Header.Get(apiKeyHeader)
			if got == "" {
				got = r.URL.Query().Get(apiKeyQuery)
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				slog.Warn("rejected api request",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(authEnvelope{Error: "invalid or missing api key"}) //nolint:errcheck
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

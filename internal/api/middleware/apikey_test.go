package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func apiKeyTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		query      string
		wantStatus int
	}{
		{"valid header key", "secret", "secret", "", http.StatusOK},
		{"valid query key", "secret", "", "secret", http.StatusOK},
		{"wrong key", "secret", "nope", "", http.StatusUnauthorized},
		{"missing key", "secret", "", "", http.StatusUnauthorized},
		{"auth disabled", "", "", "", http.StatusOK},
		{"header wins over query", "secret", "secret", "wrong", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireAPIKey(tt.configured)(apiKeyTestHandler())

			url := "/api/v1/status"
			if tt.query != "" {
				url += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}

			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireAPIKeyErrorBody(t *testing.T) {
	h := RequireAPIKey("secret")(apiKeyTestHandler())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}
}

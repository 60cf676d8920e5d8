package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"agent": "central"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	data, ok := env.Data.(map[string]any)
	if !ok || data["agent"] != "central" {
		t.Errorf("data = %#v", env.Data)
	}
	// The error field stays out of successful replies.
	if strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("body carries an error field: %s", w.Body.String())
	}
}

func TestWriteJSONNilData(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, nil)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if env.Data != nil || env.Error != "" {
		t.Errorf("envelope = %+v, want empty", env)
	}
	// Clients probe for the data key even when it is null.
	if !strings.Contains(w.Body.String(), `"data"`) {
		t.Errorf("body missing data field: %s", w.Body.String())
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusConflict, "no active call")

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if env.Error != "no active call" {
		t.Errorf("error = %q", env.Error)
	}
	if env.Data != nil {
		t.Errorf("data = %v, want nil", env.Data)
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		param string
		want  int
	}{
		{"present", "/calls?limit=25", "limit", 25},
		{"absent falls back", "/calls", "limit", 50},
		{"non-numeric falls back", "/calls?limit=viele", "limit", 50},
		{"negative passes through", "/calls?offset=-3", "offset", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if got := queryInt(r, tt.param, 50); got != tt.want {
				t.Errorf("queryInt = %d, want %d", got, tt.want)
			}
		})
	}
}

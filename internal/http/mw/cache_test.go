package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCache(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/health", "public, max-age=10"},
		{http.MethodGet, "/healthz", "no-store"},
		{http.MethodGet, "/api/config", "private, no-cache"},
		{http.MethodHead, "/api/config", "private, no-cache"},
		{http.MethodGet, "/openapi.json", "public, max-age=300"},
		{http.MethodGet, "/api/unknown", "no-store"},
		{http.MethodPost, "/api/v1/health", "no-store"},
	}

	handler := Cache(DefaultCacheRules())(okHandler())
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if got := rec.Header().Get("Cache-Control"); got != tt.want {
				t.Errorf("Cache-Control = %q, want %q", got, tt.want)
			}
		})
	}
}

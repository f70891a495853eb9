package mw

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ========================================
// Access Token Tests
// ========================================

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := bearerToken(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRequireAccessToken(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		header   string
		wantCode int
		wantMsg  string
	}{
		{"disabled", "", "", http.StatusOK, ""},
		{"disabled ignores header", "", "Bearer whatever", http.StatusOK, ""},
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK, ""},
		{"missing header", "s3cret", "", http.StatusUnauthorized, MsgMissingToken},
		{"wrong scheme", "s3cret", "Token s3cret", http.StatusUnauthorized, MsgMissingToken},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized, MsgInvalidToken},
		{"prefix of token", "s3cret", "Bearer s3c", http.StatusUnauthorized, MsgInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAccessToken(tt.token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/extract", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantMsg == "" {
				return
			}
			var body struct {
				Success bool   `json:"success"`
				Error   string `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Success || body.Error != tt.wantMsg {
				t.Errorf("body = %+v, want error %q", body, tt.wantMsg)
			}
		})
	}
}

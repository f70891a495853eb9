// Package mw contains HTTP middleware for the pagemark API.
package mw

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Access token error messages.
const (
	MsgMissingToken = "missing access token"
	MsgInvalidToken = "invalid access token"
)

// bearerToken returns the token from an "Authorization: Bearer <token>"
// header, or false when the header is absent or uses another scheme.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// checkAccessToken validates header against token. It returns the 401
// message to send, or "" when the request may proceed.
func checkAccessToken(token, header string) string {
	if token == "" {
		return ""
	}
	got, ok := bearerToken(header)
	if !ok {
		return MsgMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return MsgInvalidToken
	}
	return ""
}

// RequireAccessToken guards raw routes with the shared ACCESS_TOKEN. An
// empty token disables the check.
func RequireAccessToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if msg := checkAccessToken(token, r.Header.Get("Authorization")); msg != "" {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="pagemark"`)
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

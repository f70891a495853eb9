package mw

import (
	"net/http"
	"strings"
)

// CacheRule sets Cache-Control for paths starting with Prefix.
type CacheRule struct {
	Prefix string
	Value  string
}

// CacheRules is checked in order; the first matching prefix wins.
type CacheRules []CacheRule

// DefaultCacheRules keeps the config probe out of shared caches, since its
// body depends on the server env and on whether a token is required.
func DefaultCacheRules() CacheRules {
	return CacheRules{
		{"/api/v1/health", "public, max-age=10"},
		{"/healthz", "no-store"},
		{"/api/config", "private, no-cache"},
		{"/openapi", "public, max-age=300"},
	}
}

func (rs CacheRules) lookup(path string) string {
	for _, r := range rs {
		if strings.HasPrefix(path, r.Prefix) {
			return r.Value
		}
	}
	return "no-store"
}

// Cache sets Cache-Control on every response. Anything other than GET or
// HEAD, and any unmatched path, is no-store.
func Cache(rules CacheRules) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := "no-store"
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				value = rules.lookup(r.URL.Path)
			}
			w.Header().Set("Cache-Control", value)
			next.ServeHTTP(w, r)
		})
	}
}

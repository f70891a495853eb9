package mw

import (
	"log/slog"
	"net/http"
	"time"
)

// ExtendWriteDeadline lifts the server's WriteTimeout for a streaming route
// so a long page extraction is not cut off mid-response. The handler still
// bounds itself with its own context timeout.
func ExtendWriteDeadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := http.NewResponseController(w)
			if err := rc.SetWriteDeadline(time.Now().Add(d)); err != nil {
				slog.Debug("write deadline not extended", "path", r.URL.Path, "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

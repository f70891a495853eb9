// Package logging builds the process logger on slog-logfilter.
//
// Output is text on a terminal and JSON elsewhere unless LOG_FORMAT says
// otherwise. LOG_LEVEL sets the threshold and LOG_FILTERS may hold a JSON
// array of filters applied at startup. Request IDs and page numbers ride on
// the context and are attached by FromContext.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	logfilter "github.com/jmylchreest/slog-logfilter"
	"github.com/mattn/go-isatty"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	RequestIDKey ContextKey = "log_request_id"
	// PageKey holds the 1-based page number being extracted.
	PageKey ContextKey = "log_page"
)

// Options controls where and how the logger writes. Empty fields fall back
// to the environment.
type Options struct {
	Output io.Writer
	Format string // "text" or "json"
	Level  string
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func WithPage(ctx context.Context, page int) context.Context {
	return context.WithValue(ctx, PageKey, page)
}

func value[T any](ctx context.Context, key ContextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	v, _ := ctx.Value(key).(T)
	return v
}

// GetRequestID returns the request ID on ctx, or "".
func GetRequestID(ctx context.Context) string { return value[string](ctx, RequestIDKey) }

// GetPage returns the page number on ctx, or 0.
func GetPage(ctx context.Context) int { return value[int](ctx, PageKey) }

// FromContext returns logger with the request ID and page on ctx attached.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	var attrs []any
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if page := GetPage(ctx); page > 0 {
		attrs = append(attrs, "page", page)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// New creates a configured logger.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := firstNonEmpty(opts.Format, os.Getenv("LOG_FORMAT"))
	if format != "text" && format != "json" {
		format = "json"
		if isTerminal(out) {
			format = "text"
		}
	}

	logfilter.RegisterContextExtractor("request_id", func(ctx context.Context) (string, bool) {
		id := GetRequestID(ctx)
		return id, id != ""
	})

	logger := logfilter.New(
		logfilter.WithLevel(parseLogLevel(firstNonEmpty(opts.Level, os.Getenv("LOG_LEVEL")))),
		logfilter.WithFormat(format),
		logfilter.WithOutput(out),
		logfilter.WithSource(format == "json"),
	)

	if raw := os.Getenv("LOG_FILTERS"); raw != "" {
		if filters, err := ParseFilters(raw); err != nil {
			logger.Warn("ignoring invalid LOG_FILTERS", "error", err)
		} else {
			SetFilters(filters)
		}
	}
	return logger
}

// SetDefault builds a logger with New and installs it as slog's default.
func SetDefault(opts Options) *slog.Logger {
	logger := New(opts)
	slog.SetDefault(logger)
	return logger
}

// ParseFilters decodes a JSON array of log filters.
func ParseFilters(raw string) ([]logfilter.LogFilter, error) {
	var filters []logfilter.LogFilter
	if err := json.Unmarshal([]byte(raw), &filters); err != nil {
		return nil, err
	}
	return filters, nil
}

// SetFilters replaces the active filters.
func SetFilters(filters []logfilter.LogFilter) {
	logfilter.SetFilters(filters)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLogLevel(level string) slog.Level {
	var l slog.Level
	switch s := strings.ToLower(strings.TrimSpace(level)); s {
	case "warning":
		return slog.LevelWarn
	case "debug", "info", "warn", "error":
		_ = l.UnmarshalText([]byte(s))
		return l
	}
	return slog.LevelInfo
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

package mw

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/pagemark/internal/logging"
)

// LogFiltersConfig holds configuration for the log filters loader.
type LogFiltersConfig struct {
	Client       ObjectGetter
	Bucket       string
	Key          string        // Default: "config/logfilters.json"
	CacheTTL     time.Duration // Default: 5 min
	ErrorBackoff time.Duration // Default: 1 min
	Logger       *slog.Logger
}

// LogFiltersLoader keeps the process log filters in sync with a JSON array
// stored in the export bucket. A failed fetch leaves the active filters
// alone and pauses polling for ErrorBackoff.
type LogFiltersLoader struct {
	client  ObjectGetter
	bucket  string
	key     string
	ttl     time.Duration
	backoff time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	etag     string
	failedAt time.Time
	count    int

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewLogFiltersLoader creates a new log filters loader.
func NewLogFiltersLoader(cfg LogFiltersConfig) *LogFiltersLoader {
	l := &LogFiltersLoader{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		key:     cfg.Key,
		ttl:     cfg.CacheTTL,
		backoff: cfg.ErrorBackoff,
		logger:  cfg.Logger,
		stop:    make(chan struct{}),
	}
	if l.key == "" {
		l.key = "config/logfilters.json"
	}
	if l.ttl <= 0 {
		l.ttl = 5 * time.Minute
	}
	if l.backoff <= 0 {
		l.backoff = time.Minute
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Start loads the filters once, then polls every CacheTTL until Stop or ctx
// cancellation.
func (l *LogFiltersLoader) Start(ctx context.Context) {
	if l.client == nil {
		l.logger.Info("log filters loader disabled (no object storage)")
		return
	}
	l.poll(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		t := time.NewTicker(l.ttl)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				l.poll(ctx)
			case <-l.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	l.logger.Info("log filters loader started", "bucket", l.bucket, "key", l.key, "interval", l.ttl.String())
}

// Stop ends polling. Repeated calls are no-ops.
func (l *LogFiltersLoader) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	l.wg.Wait()
}

// FilterCount returns how many filters the last successful load applied.
func (l *LogFiltersLoader) FilterCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func (l *LogFiltersLoader) poll(ctx context.Context) {
	l.mu.Lock()
	if !l.failedAt.IsZero() && time.Since(l.failedAt) < l.backoff {
		l.mu.Unlock()
		return
	}
	etag := l.etag
	l.mu.Unlock()

	var raw json.RawMessage
	newETag, changed, err := fetchJSON(ctx, l.client, l.bucket, l.key, etag, &raw)
	if err == nil && !changed {
		return
	}
	if err != nil {
		l.markFailed()
		if isMissingObject(err) {
			l.logger.Info("log filters object not found, keeping current filters", "key", l.key)
		} else {
			l.logger.Error("failed to load log filters", "key", l.key, "error", err)
		}
		return
	}

	filters, err := logging.ParseFilters(string(raw))
	if err != nil {
		l.markFailed()
		l.logger.Error("log filters are not a filter array", "key", l.key, "error", err)
		return
	}
	logging.SetFilters(filters)

	l.mu.Lock()
	l.etag = newETag
	l.failedAt = time.Time{}
	l.count = len(filters)
	l.mu.Unlock()
	l.logger.Info("log filters loaded", "key", l.key, "etag", newETag, "filters", len(filters))
}

func (l *LogFiltersLoader) markFailed() {
	l.mu.Lock()
	l.failedAt = time.Now()
	l.mu.Unlock()
}

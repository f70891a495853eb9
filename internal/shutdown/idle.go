// Package shutdown stops the API server after a period without traffic.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// IdleMonitor counts in-flight requests and closes Done once the server has
// been quiet for the configured timeout. A streaming extraction counts as
// in flight until its last byte is written.
type IdleMonitor struct {
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
	ignore   []string

	inFlight atomic.Int64
	lastSeen atomic.Int64 // unix nanos

	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// IdleMonitorConfig configures an IdleMonitor.
type IdleMonitorConfig struct {
	// Timeout of zero or less disables the monitor.
	Timeout time.Duration
	// Interval between idle checks. Defaults to a sixth of Timeout clamped to [1s, 30s].
	Interval time.Duration
	Logger   *slog.Logger
	// IgnorePrefixes are path prefixes that never count as traffic.
	IgnorePrefixes []string
}

// DefaultIgnorePrefixes covers the health probes.
var DefaultIgnorePrefixes = []string{"/healthz", "/api/v1/health"}

// NewIdleMonitor builds a monitor. Call Start to begin checking.
func NewIdleMonitor(cfg IdleMonitorConfig) *IdleMonitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = min(max(cfg.Timeout/6, time.Second), 30*time.Second)
	}
	ignore := cfg.IgnorePrefixes
	if ignore == nil {
		ignore = DefaultIgnorePrefixes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &IdleMonitor{
		timeout:  cfg.Timeout,
		interval: interval,
		logger:   logger,
		ignore:   ignore,
		done:     make(chan struct{}),
		stop:     make(chan struct{}),
	}
	m.touch()
	return m
}

// Enabled reports whether the monitor will ever fire.
func (m *IdleMonitor) Enabled() bool { return m.timeout > 0 }

// Start launches the check loop. It is a no-op when disabled.
func (m *IdleMonitor) Start() {
	if !m.Enabled() {
		m.logger.Debug("idle shutdown disabled")
		return
	}
	m.logger.Info("idle shutdown armed", "timeout", m.timeout)
	m.wg.Add(1)
	go m.loop()
}

// Stop ends the check loop without closing Done. Safe to call more than once.
func (m *IdleMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

// Done is closed when the idle timeout elapses with no requests in flight.
func (m *IdleMonitor) Done() <-chan struct{} { return m.done }

// InFlight returns the number of tracked requests currently being served.
func (m *IdleMonitor) InFlight() int64 { return m.inFlight.Load() }

// IdleFor returns the time since the last tracked request started or finished.
func (m *IdleMonitor) IdleFor() time.Duration {
	return time.Since(time.Unix(0, m.lastSeen.Load()))
}

// Middleware tracks every request whose path is not ignored.
func (m *IdleMonitor) Middleware(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.ignored(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		m.inFlight.Add(1)
		m.touch()
		defer func() {
			m.inFlight.Add(-1)
			m.touch()
		}()
		next.ServeHTTP(w, r)
	})
}

func (m *IdleMonitor) ignored(path string) bool {
	for _, p := range m.ignore {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (m *IdleMonitor) touch() {
	m.lastSeen.Store(time.Now().UnixNano())
}

func (m *IdleMonitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			active := m.inFlight.Load()
			if active > 0 {
				// a long stream shouldn't leave the clock already expired when it ends
				m.touch()
				continue
			}
			idle := m.IdleFor()
			if idle >= m.timeout {
				m.logger.Info("idle timeout reached, shutting down",
					"idle", idle.Round(time.Millisecond),
					"timeout", m.timeout,
				)
				close(m.done)
				return
			}
			m.logger.Debug("idle check", "idle", idle.Round(time.Millisecond), "timeout", m.timeout)
		}
	}
}

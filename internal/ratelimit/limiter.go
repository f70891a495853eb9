// Package ratelimit implements the sliding-window admission controller that
// paces page requests against request-count and token-per-minute quotas.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jmylchreest/pagemark/internal/models"
)

// tokenWindow is the fixed window for the token-per-minute quotas.
const tokenWindow = time.Minute

type record struct {
	at         time.Time
	prompt     int
	completion int
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter tracks recent requests and their token usage and computes how long
// the caller must wait before the next request is admitted.
type Limiter struct {
	mu      sync.Mutex
	cfg     models.RateLimitConfig
	records []record
	now     func() time.Time
}

// New creates a limiter. A nil config never imposes a wait.
func New(cfg *models.RateLimitConfig, opts ...Option) *Limiter {
	l := &Limiter{now: time.Now}
	if cfg != nil {
		l.cfg = *cfg
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SetConfig swaps the quotas while keeping the recorded history.
// The pipeline calls it before each page so config edits apply to the next page.
func (l *Limiter) SetConfig(cfg *models.RateLimitConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cfg == nil {
		l.cfg = models.RateLimitConfig{}
		return
	}
	l.cfg = *cfg
}

// RecordRequest appends a completed request. Nil usage counts as zero tokens.
func (l *Limiter) RecordRequest(usage *models.Usage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := record{at: l.now()}
	if usage != nil {
		rec.prompt = usage.PromptTokens
		rec.completion = usage.CompletionTokens
	}
	l.records = append(l.records, rec)
	l.prune(rec.at)
}

// Len returns the number of retained records.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// WaitTime returns how long the next request must wait. It is the maximum over
// all triggered dimensions, rounded up to the millisecond, and never negative.
func (l *Limiter) WaitTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	var wait time.Duration

	if l.cfg.MaxRequests > 0 && l.cfg.RequestWindowSeconds > 0 {
		window := time.Duration(l.cfg.RequestWindowSeconds) * time.Second
		wait = max(wait, l.dimensionWait(now, window, l.cfg.MaxRequests, func(record) int { return 1 }))
	}
	if l.cfg.MaxInputTokensPerMinute > 0 {
		wait = max(wait, l.dimensionWait(now, tokenWindow, l.cfg.MaxInputTokensPerMinute, func(r record) int { return r.prompt }))
	}
	if l.cfg.MaxOutputTokensPerMinute > 0 {
		wait = max(wait, l.dimensionWait(now, tokenWindow, l.cfg.MaxOutputTokensPerMinute, func(r record) int { return r.completion }))
	}

	return ceilMillis(wait)
}

// WaitTimeMs is WaitTime in whole milliseconds.
func (l *Limiter) WaitTimeMs() int64 {
	return l.WaitTime().Milliseconds()
}

// Wait blocks until the next request is admitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return Sleep(ctx, l.WaitTime())
}

// dimensionWait sums weight over records inside window. When the sum reaches
// limit, the wait is the time until the oldest counted record leaves the window.
func (l *Limiter) dimensionWait(now time.Time, window time.Duration, limit int, weight func(record) int) time.Duration {
	cutoff := now.Add(-window)
	total := 0
	var oldest time.Time
	for _, r := range l.records {
		if !r.at.After(cutoff) {
			continue
		}
		total += weight(r)
		if oldest.IsZero() || r.at.Before(oldest) {
			oldest = r.at
		}
	}
	if total < limit || oldest.IsZero() {
		return 0
	}
	return oldest.Add(window).Sub(now)
}

// prune drops records older than the longest window, with a one-minute floor
// so the token windows always see their full history.
func (l *Limiter) prune(now time.Time) {
	retention := max(time.Duration(l.cfg.RequestWindowSeconds)*time.Second, tokenWindow)
	kept := l.records[:0]
	for _, r := range l.records {
		if now.Sub(r.at) <= retention {
			kept = append(kept, r)
		}
	}
	l.records = kept
}

func ceilMillis(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d + time.Millisecond - 1) / time.Millisecond * time.Millisecond
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package mw

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"
)

// MsgBlocked is the error body sent to blocked clients.
const MsgBlocked = "forbidden"

// BlocklistConfig holds configuration for the IP blocklist.
type BlocklistConfig struct {
	Client       ObjectGetter
	Bucket       string
	Key          string
	CacheTTL     time.Duration // Default: 5 min
	ErrorBackoff time.Duration // Default: 1 min
	Logger       *slog.Logger
}

// IPBlocklist rejects requests from addresses listed in a JSON array of IPs
// and CIDR ranges kept in the export bucket. The list is loaded lazily and
// re-checked every CacheTTL. Fetch failures keep the previous list and
// never block traffic.
type IPBlocklist struct {
	client  ObjectGetter
	bucket  string
	key     string
	ttl     time.Duration
	backoff time.Duration
	logger  *slog.Logger

	mu         sync.RWMutex
	set        ipSet
	etag       string
	checked    time.Time
	failedAt   time.Time
	refreshing bool
}

type ipSet struct {
	exact    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

func (s ipSet) contains(addr netip.Addr) bool {
	if _, ok := s.exact[addr]; ok {
		return true
	}
	for _, p := range s.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (s ipSet) size() int { return len(s.exact) + len(s.prefixes) }

// NewIPBlocklist builds a blocklist. A nil Client disables it.
func NewIPBlocklist(cfg BlocklistConfig) *IPBlocklist {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &IPBlocklist{
		client:  cfg.Client,
		bucket:  cfg.Bucket,
		key:     cfg.Key,
		ttl:     cfg.CacheTTL,
		backoff: cfg.ErrorBackoff,
		logger:  cfg.Logger,
	}
}

// Middleware answers 403 for blocked client addresses. It expects
// middleware.RealIP to run first.
func (b *IPBlocklist) Middleware(next http.Handler) http.Handler {
	if b.client == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.maybeRefresh()

		addr, ok := clientAddr(r)
		if ok && b.Blocked(addr) {
			b.logger.Warn("blocked request", "ip", addr.String(), "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": MsgBlocked})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Blocked reports whether addr is on the current list.
func (b *IPBlocklist) Blocked(addr netip.Addr) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.set.contains(addr.Unmap())
}

// Size returns the number of entries in the current list.
func (b *IPBlocklist) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.set.size()
}

// maybeRefresh starts one background fetch when the list is stale.
func (b *IPBlocklist) maybeRefresh() {
	b.mu.Lock()
	stale := b.checked.IsZero() || time.Since(b.checked) > b.ttl
	backingOff := !b.failedAt.IsZero() && time.Since(b.failedAt) < b.backoff
	if !stale || backingOff || b.refreshing {
		b.mu.Unlock()
		return
	}
	b.refreshing = true
	b.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = b.Refresh(ctx)
	}()
}

// Refresh fetches the list now. On error the previous list stays active.
func (b *IPBlocklist) Refresh(ctx context.Context) error {
	b.mu.RLock()
	etag := b.etag
	b.mu.RUnlock()

	var entries []string
	newETag, changed, err := fetchJSON(ctx, b.client, b.bucket, b.key, etag, &entries)
	switch {
	case err != nil && isMissingObject(err):
		b.logger.Debug("blocklist object not found", "key", b.key)
		b.finish(nil, "", true)
		return err
	case err != nil:
		b.logger.Error("failed to load blocklist", "key", b.key, "error", err)
		b.finish(nil, "", true)
		return err
	case !changed:
		b.finish(nil, "", false)
		return nil
	}

	set, invalid := parseBlocklist(entries)
	for _, e := range invalid {
		b.logger.Warn("ignoring invalid blocklist entry", "entry", e)
	}
	b.finish(&set, newETag, false)
	b.logger.Info("blocklist loaded", "key", b.key, "entries", set.size())
	return nil
}

// finish records a fetch outcome. A nil set keeps the current list.
func (b *IPBlocklist) finish(set *ipSet, etag string, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshing = false
	b.checked = time.Now()
	if failed {
		b.failedAt = b.checked
		return
	}
	b.failedAt = time.Time{}
	if set != nil {
		b.set = *set
		b.etag = etag
	}
}

// parseBlocklist splits entries into addresses and prefixes, returning the
// entries it could not parse.
func parseBlocklist(entries []string) (ipSet, []string) {
	set := ipSet{exact: make(map[netip.Addr]struct{})}
	var invalid []string
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				invalid = append(invalid, entry)
				continue
			}
			set.prefixes = append(set.prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			invalid = append(invalid, entry)
			continue
		}
		set.exact[addr.Unmap()] = struct{}{}
	}
	return set, invalid
}

// clientAddr reads the client address from RemoteAddr, with or without a port.
func clientAddr(r *http.Request) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(r.RemoteAddr)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

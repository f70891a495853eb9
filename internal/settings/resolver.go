package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jmylchreest/pagemark/internal/models"
)

// ActiveSource is the part of Store the resolver needs.
type ActiveSource interface {
	Active(ctx context.Context) (*models.ModelConfig, error)
	DecodeAPIKey(cfg models.ModelConfig) (string, error)
}

// Resolver merges the active user config with the server's environment
// config. It is read on every page, so edits apply to the next page.
type Resolver struct {
	source ActiveSource
	logger *slog.Logger

	mu  sync.RWMutex
	env models.EnvConfig
}

// NewResolver creates a resolver. source may be nil when no settings store is used.
func NewResolver(source ActiveSource, env models.EnvConfig, logger *slog.Logger) *Resolver {
	return &Resolver{source: source, env: env, logger: logger}
}

// SetEnv replaces the environment config, e.g. after probing the server.
func (r *Resolver) SetEnv(env models.EnvConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.env = env
}

// Env returns the current environment config.
func (r *Resolver) Env() models.EnvConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.env
}

func (r *Resolver) active(ctx context.Context) *models.ModelConfig {
	if r.source == nil {
		return nil
	}
	cfg, err := r.source.Active(ctx)
	if err != nil {
		r.logger.Warn("failed to load active model config", "error", err)
		return nil
	}
	return cfg
}

// HasAnyConfig reports whether extraction can run: an active user config or
// a fully configured server environment.
func (r *Resolver) HasAnyConfig(ctx context.Context) bool {
	return r.active(ctx) != nil || r.Env().IsConfigured
}

// ResolveModel returns the decoded active config. Without an active config the
// fields stay empty and the server fills them from its environment.
func (r *Resolver) ResolveModel(ctx context.Context) (models.ResolvedModelConfig, error) {
	cfg := r.active(ctx)
	if cfg == nil {
		if !r.Env().IsConfigured {
			return models.ResolvedModelConfig{}, fmt.Errorf("no active model config and server environment is not configured")
		}
		r.logger.Debug("using server environment model config")
		return models.ResolvedModelConfig{}, nil
	}
	key, err := r.source.DecodeAPIKey(*cfg)
	if err != nil {
		return models.ResolvedModelConfig{}, fmt.Errorf("decode api key for %q: %w", cfg.Name, err)
	}
	r.logger.Debug("using active model config", "config", cfg.Name, "model", cfg.ModelID)
	return models.ResolvedModelConfig{
		BaseURL:      cfg.BaseURL,
		ModelID:      cfg.ModelID,
		APIKey:       key,
		CustomPrompt: cfg.CustomPrompt,
	}, nil
}

// ResolveRateLimit returns the limit that applies to the next page.
func (r *Resolver) ResolveRateLimit(ctx context.Context) *models.RateLimitConfig {
	return ResolveRateLimit(r.active(ctx), r.Env())
}

// ResolveRateLimit picks the active config's limit when enabled, otherwise the
// environment's when enabled, otherwise none.
func ResolveRateLimit(active *models.ModelConfig, env models.EnvConfig) *models.RateLimitConfig {
	if active != nil && active.RateLimit.Enabled() {
		return active.RateLimit
	}
	if env.RateLimit.Enabled() {
		return env.RateLimit
	}
	return nil
}

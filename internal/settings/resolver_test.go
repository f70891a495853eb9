package settings

import (
	"context"
	"testing"

	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
)

func TestResolveRateLimit(t *testing.T) {
	userLimit := &models.RateLimitConfig{MaxRequests: 5, RequestWindowSeconds: 60}
	envLimit := &models.RateLimitConfig{MaxInputTokensPerMinute: 1000}

	tests := []struct {
		name   string
		active *models.ModelConfig
		env    models.EnvConfig
		want   *models.RateLimitConfig
	}{
		{"no configs", nil, models.EnvConfig{}, nil},
		{"active wins", &models.ModelConfig{RateLimit: userLimit}, models.EnvConfig{RateLimit: envLimit}, userLimit},
		{"env when active has none", &models.ModelConfig{}, models.EnvConfig{RateLimit: envLimit}, envLimit},
		{"env when no active", nil, models.EnvConfig{RateLimit: envLimit}, envLimit},
		{"env when active disabled", &models.ModelConfig{RateLimit: &models.RateLimitConfig{RequestWindowSeconds: 30}}, models.EnvConfig{RateLimit: envLimit}, envLimit},
		{"none when both disabled", &models.ModelConfig{RateLimit: &models.RateLimitConfig{}}, models.EnvConfig{RateLimit: &models.RateLimitConfig{}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveRateLimit(tt.active, tt.env); got != tt.want {
				t.Errorf("ResolveRateLimit() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolver_HasAnyConfig(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := NewResolver(s, models.EnvConfig{}, logging.Discard())

	if r.HasAnyConfig(ctx) {
		t.Error("HasAnyConfig() = true with nothing configured")
	}

	r.SetEnv(models.EnvConfig{IsConfigured: true})
	if !r.HasAnyConfig(ctx) {
		t.Error("HasAnyConfig() = false with configured env")
	}

	r.SetEnv(models.EnvConfig{})
	mustAdd(t, s, "a")
	if !r.HasAnyConfig(ctx) {
		t.Error("HasAnyConfig() = false with active config")
	}
}

func TestResolver_ResolveModel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	r := NewResolver(s, models.EnvConfig{IsConfigured: true}, logging.Discard())

	got, err := r.ResolveModel(ctx)
	if err != nil {
		t.Fatalf("ResolveModel() error = %v", err)
	}
	if got != (models.ResolvedModelConfig{}) {
		t.Errorf("ResolveModel() = %+v, want empty for env fallback", got)
	}

	mustAdd(t, s, "a")
	got, err = r.ResolveModel(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.APIKey != "sk-a" || got.ModelID != "vision-a" {
		t.Errorf("ResolveModel() = %+v, want decoded active config", got)
	}
}

func TestResolver_ResolveModelMissing(t *testing.T) {
	r := NewResolver(nil, models.EnvConfig{}, logging.Discard())
	if _, err := r.ResolveModel(context.Background()); err == nil {
		t.Error("ResolveModel() expected error without any config")
	}
}

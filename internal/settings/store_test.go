package settings

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmylchreest/pagemark/internal/crypto"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil, logging.Discard())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustAdd(t *testing.T, s *Store, name string) models.ModelConfig {
	t.Helper()
	cfg, err := s.Add(context.Background(), ConfigInput{
		Name:    name,
		BaseURL: "https://api.example.com/v1",
		ModelID: "vision-" + name,
		APIKey:  "sk-" + name,
	})
	if err != nil {
		t.Fatalf("Add(%q) error = %v", name, err)
	}
	return cfg
}

// ========================================
// Add / Activate
// ========================================

func TestAdd_FirstBecomesActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustAdd(t, s, "a")
	if !a.IsActive {
		t.Error("first config should be active")
	}
	b := mustAdd(t, s, "b")
	if b.IsActive {
		t.Error("second config should not be active")
	}

	active, err := s.Active(ctx)
	if err != nil || active == nil || active.ID != a.ID {
		t.Errorf("Active() = %+v, %v; want %s", active, err, a.ID)
	}
}

func TestAdd_ActivateFlagIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustAdd(t, s, "a")
	c, err := s.Add(ctx, ConfigInput{Name: "c", BaseURL: "https://x/v1", ModelID: "m", Activate: true})
	if err != nil {
		t.Fatal(err)
	}

	all, _ := s.List(ctx)
	activeCount := 0
	for _, cfg := range all {
		if cfg.IsActive {
			activeCount++
			if cfg.ID != c.ID {
				t.Errorf("active config = %s, want %s", cfg.ID, c.ID)
			}
		}
	}
	if activeCount != 1 {
		t.Errorf("active count = %d, want 1", activeCount)
	}
}

func TestAdd_Validation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Add(context.Background(), ConfigInput{Name: "x"})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Add() error = %v, want ErrInvalidConfig", err)
	}
}

func TestActivate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustAdd(t, s, "a")
	b := mustAdd(t, s, "b")

	if err := s.Activate(ctx, b.ID); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	gotA, _ := s.Get(ctx, a.ID)
	gotB, _ := s.Get(ctx, b.ID)
	if gotA.IsActive || !gotB.IsActive {
		t.Errorf("a.active=%v b.active=%v, want false/true", gotA.IsActive, gotB.IsActive)
	}

	if err := s.Activate(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Activate(missing) error = %v, want ErrNotFound", err)
	}
	// A failed activation must not clear the current one.
	if active, _ := s.Active(ctx); active == nil || active.ID != b.ID {
		t.Errorf("Active() after failed activation = %+v", active)
	}
}

// ========================================
// Delete
// ========================================

func TestDelete_ActivePromotesFirstRemaining(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustAdd(t, s, "a")
	b := mustAdd(t, s, "b")
	c := mustAdd(t, s, "c")

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	active, _ := s.Active(ctx)
	if active == nil || active.ID != b.ID {
		t.Errorf("Active() = %+v, want %s", active, b.ID)
	}

	// Deleting an inactive config leaves the active one alone.
	if err := s.Delete(ctx, c.ID); err != nil {
		t.Fatal(err)
	}
	active, _ = s.Active(ctx)
	if active == nil || active.ID != b.ID {
		t.Errorf("Active() = %+v, want %s", active, b.ID)
	}
}

func TestDelete_LastLeavesNoActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustAdd(t, s, "a")

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if active, err := s.Active(ctx); err != nil || active != nil {
		t.Errorf("Active() = %+v, %v; want nil", active, err)
	}
	if err := s.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() twice error = %v, want ErrNotFound", err)
	}
}

// ========================================
// Update / API keys
// ========================================

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustAdd(t, s, "a")

	name := "renamed"
	key := "sk-new"
	got, err := s.Update(ctx, a.ID, ConfigUpdate{
		Name:      &name,
		APIKey:    &key,
		RateLimit: &models.RateLimitConfig{MaxRequests: 5, RequestWindowSeconds: 60},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q", got.Name)
	}
	if plain, _ := s.DecodeAPIKey(got); plain != "sk-new" {
		t.Errorf("DecodeAPIKey() = %q, want sk-new", plain)
	}
	if got.RateLimit == nil || got.RateLimit.MaxRequests != 5 {
		t.Errorf("RateLimit = %+v", got.RateLimit)
	}
	if got.ModelID != a.ModelID {
		t.Errorf("ModelID changed to %q", got.ModelID)
	}

	got, err = s.Update(ctx, a.ID, ConfigUpdate{ClearLimit: true})
	if err != nil || got.RateLimit != nil {
		t.Errorf("Update(ClearLimit) = %+v, %v", got.RateLimit, err)
	}

	empty := ""
	if _, err := s.Update(ctx, a.ID, ConfigUpdate{BaseURL: &empty}); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Update(empty base URL) error = %v, want ErrInvalidConfig", err)
	}
}

func TestAPIKeyIsNotStoredInClear(t *testing.T) {
	s := newTestStore(t)
	a := mustAdd(t, s, "a")
	if a.APIKey == "sk-a" {
		t.Error("API key stored in clear text")
	}
	if a.APIKey != crypto.Obfuscate("sk-a") {
		t.Errorf("APIKey = %q, want base64 obfuscation", a.APIKey)
	}
}

func TestAPIKeyEncrypted(t *testing.T) {
	codec, err := crypto.NewKeyCodec(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "nested", "settings.db")
	s, err := Open(path, codec, logging.Discard())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = s.Close() }()

	a := mustAdd(t, s, "a")
	if a.APIKey[:len(crypto.EncryptedPrefix)] != crypto.EncryptedPrefix {
		t.Errorf("APIKey = %q, want encrypted prefix", a.APIKey)
	}
	if plain, err := s.DecodeAPIKey(a); err != nil || plain != "sk-a" {
		t.Errorf("DecodeAPIKey() = %q, %v", plain, err)
	}
}

func TestAddPreset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg, err := s.AddPreset(ctx, "gpt-4o", "sk-openai", false)
	if err != nil {
		t.Fatalf("AddPreset() error = %v", err)
	}
	if cfg.Name != "GPT-4o" || cfg.BaseURL != "https://api.openai.com/v1" || cfg.ModelID != "gpt-4o" {
		t.Errorf("AddPreset() = %+v", cfg)
	}
	if _, err := s.AddPreset(ctx, "nope", "", false); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("AddPreset(nope) error = %v, want ErrUnknownPreset", err)
	}
}

func TestList_CreationOrder(t *testing.T) {
	s := newTestStore(t)
	names := []string{"first", "second", "third"}
	for _, n := range names {
		mustAdd(t, s, n)
	}
	all, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(all))
	}
	for i, n := range names {
		if all[i].Name != n {
			t.Errorf("List()[%d].Name = %q, want %q", i, all[i].Name, n)
		}
	}
}

package constants

import (
	"strings"
	"testing"
)

func TestPresets(t *testing.T) {
	all, err := Presets()
	if err != nil {
		t.Fatalf("Presets() error = %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("len(Presets()) = %d, want 4", len(all))
	}

	wantKeys := []string{"qwen-vl-plus", "qwen-vl-max", "gpt-4o", "gemini-2.0-flash"}
	for i, key := range wantKeys {
		if all[i].Key != key {
			t.Errorf("Presets()[%d].Key = %q, want %q", i, all[i].Key, key)
		}
		if !strings.HasPrefix(all[i].BaseURL, "https://") {
			t.Errorf("preset %q has non-https base URL %q", key, all[i].BaseURL)
		}
	}
}

func TestFindPreset(t *testing.T) {
	p, ok := FindPreset("gpt-4o")
	if !ok {
		t.Fatal("FindPreset(gpt-4o) not found")
	}
	if p.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("BaseURL = %q", p.BaseURL)
	}

	if _, ok := FindPreset("nope"); ok {
		t.Error("FindPreset(nope) should not be found")
	}
}

func TestParsePresets_Incomplete(t *testing.T) {
	_, err := parsePresets([]byte("- key: x\n  name: X\n"))
	if err == nil {
		t.Error("parsePresets() expected error for missing baseUrl")
	}
}

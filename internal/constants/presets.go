package constants

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Preset is a ready-made provider configuration without credentials.
type Preset struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	BaseURL string `yaml:"baseUrl"`
	ModelID string `yaml:"modelId"`
}

var (
	presetsOnce sync.Once
	presets     []Preset
	presetsErr  error
)

// Presets returns the built-in provider presets in display order.
func Presets() ([]Preset, error) {
	presetsOnce.Do(func() {
		presets, presetsErr = parsePresets(presetsYAML)
	})
	return presets, presetsErr
}

// FindPreset returns the preset with the given key.
func FindPreset(key string) (Preset, bool) {
	all, err := Presets()
	if err != nil {
		return Preset{}, false
	}
	for _, p := range all {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

func parsePresets(data []byte) ([]Preset, error) {
	var out []Preset
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	for i, p := range out {
		if p.Key == "" || p.BaseURL == "" || p.ModelID == "" {
			return nil, fmt.Errorf("preset %d is incomplete", i)
		}
	}
	return out, nil
}

// DefaultExtractionPrompt is sent with every page unless a custom prompt is configured.
const DefaultExtractionPrompt = `Convert the content of this document page image into well-structured Markdown.

Requirements:
1. Preserve the document's heading hierarchy using #, ##, ### and so on.
2. Reproduce tables as Markdown tables, keeping every row and column.
3. Keep ordered and unordered lists, including nesting.
4. Write mathematical formulas and symbols with Unicode characters (for example ², √, ∑, ≤), not LaTeX.
5. Describe charts or figures briefly in italics if they carry information.
6. Skip page headers, footers and page numbers.
7. Do not translate; keep the original language.
8. Output only the Markdown content. Do not wrap it in a code fence and do not add commentary.`

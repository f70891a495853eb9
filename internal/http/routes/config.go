package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/pagemark/internal/http/mw"
	"github.com/jmylchreest/pagemark/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata, security schemes, and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("pagemark API", version.Get().Short())
	cfg.Info.Description = "Converts document pages to Markdown with OpenAI-compatible vision models, and DOCX files with a local converter."

	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "http",
			Scheme:      "bearer",
			Description: "Shared access token. Required only when the server sets ACCESS_TOKEN.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Extraction", Description: "Page and document conversion", Extensions: map[string]any{"x-displayName": "Extraction"}},
		{Name: "Exports", Description: "Stored Markdown exports", Extensions: map[string]any{"x-displayName": "Exports"}},
		{Name: "Configuration", Description: "Server provider configuration", Extensions: map[string]any{"x-displayName": "Configuration"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}

package routes

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/http/handlers"
	"github.com/jmylchreest/pagemark/internal/http/mw"
)

// Register registers all huma routes with the given API instance.
func Register(api huma.API, h *Handlers) {
	// =========================================================================
	// Public Routes
	// =========================================================================

	mw.PublicGet(api, "/api/v1/health", h.HealthCheck, mw.Doc{
		ID:      "healthCheck",
		Tag:     "Health",
		Summary: "Health check",
	})

	mw.PublicGet(api, "/api/config", h.Config.GetConfig, mw.Doc{
		ID:          "getConfig",
		Tag:         "Configuration",
		Summary:     "Server provider configuration",
		Description: "Reports which EXTRACT_* settings the server holds and whether an access token is required. API keys are reported only as present or absent.",
	})

	mw.HiddenGet(api, "/healthz", h.Livez)

	// =========================================================================
	// Protected Routes (ACCESS_TOKEN when configured)
	// =========================================================================

	if h.IncludeExports() {
		mw.ProtectedPost(api, "/api/v1/exports", h.Export.CreateExport, mw.Doc{
			ID:          "createExport",
			Tag:         "Exports",
			Summary:     "Upload an assembled document",
			Description: "Stores the Markdown in the export bucket and returns its key and a time-limited download URL.",
			Status:      http.StatusCreated,
			MaxBody:     constants.MaxExportBytes + 64*1024,
		})
	}

	if h.DocumentRaw {
		handlers.RegisterRawEndpoints(api)
	}
}

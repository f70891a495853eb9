// Package routes provides shared route registration for the pagemark API.
// This allows both the main server and the OpenAPI generator to use
// the same route definitions, so the OpenAPI document always matches the server.
package routes

import (
	"context"

	"github.com/jmylchreest/pagemark/internal/http/handlers"
)

// ConfigHandlers serves the provider configuration probe.
type ConfigHandlers interface {
	GetConfig(ctx context.Context, input *struct{}) (*handlers.GetConfigOutput, error)
}

// ExportHandlers serves export uploads.
type ExportHandlers interface {
	CreateExport(ctx context.Context, input *handlers.CreateExportInput) (*handlers.CreateExportOutput, error)
}

// Handlers aggregates the huma handlers for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass stub implementations.
type Handlers struct {
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)
	Livez       func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)

	Config ConfigHandlers
	Export ExportHandlers // nil when export storage is not configured

	// DocumentRaw adds the chi-served streaming and multipart routes to the
	// OpenAPI document. The live server mounts those on chi directly.
	DocumentRaw bool
}

// IncludeExports reports whether export routes should be registered.
func (h *Handlers) IncludeExports() bool {
	return h.Export != nil
}

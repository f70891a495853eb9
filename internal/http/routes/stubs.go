package routes

import (
	"context"

	"github.com/jmylchreest/pagemark/internal/http/handlers"
)

// StubHandlers returns a Handlers instance with stub implementations.
// All handlers return nil responses - these are only used for OpenAPI generation
// where Huma extracts type information from function signatures.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: stubHealthCheck,
		Livez:       stubLivez,
		Config:      &stubConfigHandlers{},
		Export:      &stubExportHandlers{},
		DocumentRaw: true,
	}
}

func stubHealthCheck(_ context.Context, _ *struct{}) (*handlers.HealthCheckOutput, error) {
	return nil, nil
}

func stubLivez(_ context.Context, _ *struct{}) (*handlers.LivezOutput, error) {
	return nil, nil
}

type stubConfigHandlers struct{}

func (s *stubConfigHandlers) GetConfig(_ context.Context, _ *struct{}) (*handlers.GetConfigOutput, error) {
	return nil, nil
}

type stubExportHandlers struct{}

func (s *stubExportHandlers) CreateExport(_ context.Context, _ *handlers.CreateExportInput) (*handlers.CreateExportOutput, error) {
	return nil, nil
}

// Package service contains the business logic behind the HTTP handlers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/pagemark/internal/config"
	"github.com/jmylchreest/pagemark/internal/llm"
	"github.com/jmylchreest/pagemark/internal/storage"
)

// Services holds all service instances.
type Services struct {
	Extract *ExtractService
	Docx    *DocxService
	Export  *ExportService
	Storage *storage.ExportStorage
	Config  *config.Config
}

// NewServices creates all service instances.
func NewServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	// Streaming responses are bounded per request by the extract service,
	// so the shared client carries no overall timeout.
	provider := llm.NewProvider(&http.Client{}, logger)

	extractSvc := NewExtractService(provider, ExtractEnv{
		BaseURL:      cfg.ExtractBaseURL,
		ModelID:      cfg.ExtractModelID,
		APIKey:       cfg.ExtractAPIKey,
		CustomPrompt: cfg.ExtractPrompt,
	}, cfg.StreamTimeout, logger)

	exportStore, err := storage.NewExportStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create export storage: %w", err)
	}

	return &Services{
		Extract: extractSvc,
		Docx:    NewDocxService(cfg.DocxTimeout, logger),
		Export:  NewExportService(exportStore, logger),
		Storage: exportStore,
		Config:  cfg,
	}, nil
}

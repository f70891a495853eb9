package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/storage"
)

// Export error messages.
const (
	MsgExportDisabled = "Export storage is not configured"
	MsgExportTooLarge = "Markdown too large. Maximum 50MB."
	MsgExportFailed   = "Export upload failed"
)

// ExportUploader stores assembled markdown.
type ExportUploader interface {
	IsEnabled() bool
	Put(ctx context.Context, fileName, markdown string) (models.ExportResult, error)
}

// ExportService uploads assembled documents to object storage.
type ExportService struct {
	store  ExportUploader
	logger *slog.Logger
}

// NewExportService creates an export service.
func NewExportService(store ExportUploader, logger *slog.Logger) *ExportService {
	return &ExportService{store: store, logger: logger}
}

// IsEnabled reports whether uploads can be served.
func (s *ExportService) IsEnabled() bool {
	return s.store != nil && s.store.IsEnabled()
}

// Upload stores the markdown under a generated key and returns a download URL.
func (s *ExportService) Upload(ctx context.Context, req models.ExportRequest) (models.ExportResult, error) {
	logger := logging.FromContext(ctx, s.logger)

	if !s.IsEnabled() {
		return models.ExportResult{}, &RequestError{Status: http.StatusServiceUnavailable, Message: MsgExportDisabled, Err: storage.ErrDisabled}
	}
	if len(req.Markdown) > constants.MaxExportBytes {
		return models.ExportResult{}, &RequestError{Status: http.StatusRequestEntityTooLarge, Message: MsgExportTooLarge}
	}

	res, err := s.store.Put(ctx, req.FileName, req.Markdown)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return models.ExportResult{}, err
		}
		logger.Error("export upload failed", "file", req.FileName, "error", err)
		return models.ExportResult{}, &RequestError{Status: http.StatusBadGateway, Message: MsgExportFailed, Err: err}
	}
	logger.Info("export uploaded", "key", res.Key, "bytes", res.Size)
	return res, nil
}

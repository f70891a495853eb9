package handlers

import (
	"context"

	"github.com/jmylchreest/pagemark/internal/models"
)

// ExportUploader stores assembled documents.
type ExportUploader interface {
	Upload(ctx context.Context, req models.ExportRequest) (models.ExportResult, error)
}

// ExportHandler serves POST /api/v1/exports.
type ExportHandler struct {
	svc ExportUploader
}

// NewExportHandler creates an export handler.
func NewExportHandler(svc ExportUploader) *ExportHandler {
	return &ExportHandler{svc: svc}
}

// CreateExportInput is the export upload request.
type CreateExportInput struct {
	Body models.ExportRequest
}

// CreateExportOutput is the stored export.
type CreateExportOutput struct {
	Body models.ExportResult
}

// CreateExport uploads assembled Markdown and returns where it was stored.
func (h *ExportHandler) CreateExport(ctx context.Context, input *CreateExportInput) (*CreateExportOutput, error) {
	res, err := h.svc.Upload(ctx, input.Body)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &CreateExportOutput{Body: res}, nil
}

package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/service"
)

// multipartOverhead covers boundaries and part headers around the file.
const multipartOverhead = 1 << 20

// DocxConverter converts an uploaded document.
type DocxConverter interface {
	Convert(ctx context.Context, name string, data []byte) (models.DocxResult, error)
}

// DocxHandler serves POST /api/convert-docx.
type DocxHandler struct {
	svc    DocxConverter
	logger *slog.Logger
}

// NewDocxHandler creates a DOCX handler.
func NewDocxHandler(svc DocxConverter, logger *slog.Logger) *DocxHandler {
	return &DocxHandler{svc: svc, logger: logger}
}

// ServeHTTP reads the multipart "file" field and returns the Markdown.
func (h *DocxHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxDocxBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, service.MsgDocxTooLarge)
			return
		}
		writeJSONError(w, http.StatusBadRequest, service.MsgNoFile)
		return
	}
	defer file.Close()

	if header.Size > constants.MaxDocxBytes {
		writeJSONError(w, http.StatusRequestEntityTooLarge, service.MsgDocxTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Warn("failed to read docx upload", "error", err)
		writeJSONError(w, http.StatusBadRequest, service.MsgNoFile)
		return
	}

	res, err := h.svc.Convert(r.Context(), header.Filename, data)
	if err != nil {
		var reqErr *service.RequestError
		switch {
		case errors.As(err, &reqErr):
			writeJSONError(w, reqErr.Status, reqErr.Message)
		case errors.Is(err, context.Canceled):
			logger.Debug("docx request canceled by client")
		default:
			writeJSONError(w, http.StatusInternalServerError, service.MsgDocxConvertFail)
		}
		return
	}

	writeJSON(w, http.StatusOK, models.DocxResponse{Success: true, Data: &res})
}

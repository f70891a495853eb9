package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/docx"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
)

// DOCX error messages.
const (
	MsgNoFile          = "No file provided"
	MsgDocxTooLarge    = "File too large. Maximum 100MB."
	MsgDocxOnly        = "Only .docx files are supported"
	MsgDocxConvertFail = "DOCX conversion failed"
)

// DocxService converts uploaded Word documents to Markdown.
type DocxService struct {
	converter *docx.Converter
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDocxService creates a DOCX service. A zero timeout uses the default.
func NewDocxService(timeout time.Duration, logger *slog.Logger) *DocxService {
	if timeout <= 0 {
		timeout = constants.DocxRequestTimeout
	}
	return &DocxService{
		converter: docx.NewConverter(logger),
		timeout:   timeout,
		logger:    logger,
	}
}

// Convert validates the upload and converts it. Validation failures and
// conversion failures are returned as *RequestError.
func (s *DocxService) Convert(ctx context.Context, name string, data []byte) (models.DocxResult, error) {
	logger := logging.FromContext(ctx, s.logger)

	if len(data) > constants.MaxDocxBytes {
		return models.DocxResult{}, &RequestError{Status: http.StatusRequestEntityTooLarge, Message: MsgDocxTooLarge}
	}
	if !strings.HasSuffix(strings.ToLower(name), ".docx") {
		return models.DocxResult{}, &RequestError{Status: http.StatusBadRequest, Message: MsgDocxOnly}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type outcome struct {
		res models.DocxResult
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		res, err := s.converter.Convert(data)
		done <- outcome{res, err}
	}()

	select {
	case <-ctx.Done():
		logger.Warn("docx conversion abandoned", "file", name, "error", ctx.Err())
		return models.DocxResult{}, ctx.Err()
	case out := <-done:
		if out.err != nil {
			logger.Warn("docx conversion failed", "file", name, "error", out.err)
			return models.DocxResult{}, &RequestError{Status: http.StatusInternalServerError, Message: MsgDocxConvertFail, Err: out.err}
		}
		logger.Info("docx converted",
			"file", name,
			"bytes", len(data),
			"markdown_bytes", len(out.res.Markdown),
			"messages", len(out.res.Messages),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return out.res, nil
	}
}

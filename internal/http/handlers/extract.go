package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/http/mw"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/service"
)

// MsgInvalidJSON is returned when the extract body does not decode.
const MsgInvalidJSON = "Invalid JSON body"

// PageExtractor streams one page extraction into a response.
type PageExtractor interface {
	Extract(ctx context.Context, req models.ExtractRequest, out service.ResponseStream) error
}

// ExtractHandler serves POST /api/extract as a chunked text/plain stream.
type ExtractHandler struct {
	svc    PageExtractor
	logger *slog.Logger
}

// NewExtractHandler creates an extract handler.
func NewExtractHandler(svc PageExtractor, logger *slog.Logger) *ExtractHandler {
	return &ExtractHandler{svc: svc, logger: logger}
}

// streamWriter commits the 200 text/plain headers on Begin and flushes
// after each delta.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	began   bool
}

func (s *streamWriter) Begin() {
	if s.began {
		return
	}
	s.began = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
}

func (s *streamWriter) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *streamWriter) Flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// ServeHTTP decodes the request and streams the page.
func (h *ExtractHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), h.logger)

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxExtractBodyBytes)
	var req models.ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, service.MsgImageTooLarge)
			return
		}
		writeJSONError(w, http.StatusBadRequest, MsgInvalidJSON)
		return
	}

	flusher, _ := w.(http.Flusher)
	out := &streamWriter{w: w, flusher: flusher}

	err := h.svc.Extract(r.Context(), req, out)
	if err == nil {
		return
	}

	var reqErr *service.RequestError
	switch {
	case errors.As(err, &reqErr) && !out.began:
		writeJSONError(w, reqErr.Status, reqErr.Message)
	case errors.Is(err, context.Canceled):
		logger.Debug("extract request canceled by client")
	case !out.began:
		logger.Error("extract failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "extraction failed")
	default:
		logger.Warn("extract ended with error after streaming began", "error", err)
	}
}

// ExtractStreamInput documents the extract request for OpenAPI.
type ExtractStreamInput struct {
	Body models.ExtractRequest
}

// RegisterRawEndpoints adds the raw extract and DOCX routes to the OpenAPI
// document. The real handlers are mounted on chi.
func RegisterRawEndpoints(api huma.API) {
	errorResponses := map[string]*huma.Response{
		"400": {Description: "Invalid body or missing provider configuration"},
		"401": {Description: "Missing or invalid access token"},
		"413": {Description: "Payload too large"},
	}

	extractResponses := map[string]*huma.Response{
		"200": {
			Description: "Streamed Markdown. Ends with an EXTRACT_USAGE or EXTRACT_STREAM_ERROR HTML comment.",
			Content: map[string]*huma.MediaType{
				"text/plain": {Schema: &huma.Schema{Type: "string"}},
			},
		},
		"502": {Description: "Provider failed before streaming began"},
		"504": {Description: "Provider did not start streaming in time"},
	}
	for k, v := range errorResponses {
		extractResponses[k] = v
	}

	huma.Register(api, huma.Operation{
		OperationID: "extractPage",
		Method:      http.MethodPost,
		Path:        "/api/extract",
		Summary:     "Extract one page image to Markdown",
		Description: "Streams the vision model's Markdown for a single base64 page image. Request fields override the server's EXTRACT_* configuration.",
		Tags:        []string{"Extraction"},
		Security:    mw.RequireToken(),
		Responses:   extractResponses,
	}, func(ctx context.Context, input *ExtractStreamInput) (*struct{ Body []byte }, error) {
		return nil, huma.Error501NotImplemented("served by the raw handler")
	})

	docxResponses := map[string]*huma.Response{
		"200": {
			Description: "Converted document",
			Content: map[string]*huma.MediaType{
				"application/json": {Schema: &huma.Schema{
					Type: "object",
					Properties: map[string]*huma.Schema{
						"success": {Type: "boolean"},
						"data": {Type: "object", Properties: map[string]*huma.Schema{
							"markdown": {Type: "string"},
							"messages": {Type: "array", Items: &huma.Schema{Type: "string"}},
						}},
					},
				}},
			},
		},
		"500": {Description: "Conversion failed"},
	}
	for k, v := range errorResponses {
		docxResponses[k] = v
	}

	huma.Register(api, huma.Operation{
		OperationID: "convertDocx",
		Method:      http.MethodPost,
		Path:        "/api/convert-docx",
		Summary:     "Convert a DOCX file to Markdown",
		Description: "Multipart upload with the document in the `file` field. Maximum 100MB.",
		Tags:        []string{"Extraction"},
		Security:    mw.RequireToken(),
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"multipart/form-data": {Schema: &huma.Schema{
					Type:       "object",
					Properties: map[string]*huma.Schema{"file": {Type: "string", Format: "binary"}},
					Required:   []string{"file"},
				}},
			},
		},
		Responses: docxResponses,
	}, func(ctx context.Context, input *struct{}) (*struct{ Body []byte }, error) {
		return nil, huma.Error501NotImplemented("served by the raw handler")
	})
}

var _ io.Writer = (*streamWriter)(nil)

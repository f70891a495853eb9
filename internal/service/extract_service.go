package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/llm"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/sentinel"
)

// Error messages returned before a stream starts.
const (
	MsgImageTooLarge  = "Image too large. Maximum 15MB per page."
	MsgMissingConfig  = "Missing required config. Set EXTRACT_BASE_URL, EXTRACT_MODEL_ID, EXTRACT_API_KEY on the server or provide them in the request."
	MsgInvalidBaseURL = "Invalid base URL. It must be a public http(s) endpoint."
)

var errFirstByteTimeout = errors.New("provider did not start streaming in time")

// RequestError is a failure reported to the caller with an HTTP status,
// before any streamed output was written.
type RequestError struct {
	Status  int
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ResponseStream receives a streamed page. Begin is called once, before
// the first write, to commit a successful response.
type ResponseStream interface {
	io.Writer
	Begin()
	Flush()
}

// Streamer is the provider side of an extraction.
type Streamer interface {
	Stream(ctx context.Context, req llm.StreamRequest, onDelta func(string) error) (*models.Usage, error)
}

// ExtractEnv is the server's fallback provider configuration.
type ExtractEnv struct {
	BaseURL      string
	ModelID      string
	APIKey       string
	CustomPrompt string
}

// ExtractService streams page extractions from the configured provider.
type ExtractService struct {
	streamer         Streamer
	env              ExtractEnv
	validBaseURL     func(string) bool
	streamTimeout    time.Duration
	firstByteTimeout time.Duration
	logger           *slog.Logger
}

// NewExtractService creates an extract service.
func NewExtractService(streamer Streamer, env ExtractEnv, streamTimeout time.Duration, logger *slog.Logger) *ExtractService {
	if streamTimeout <= 0 {
		streamTimeout = constants.StreamTimeout
	}
	return &ExtractService{
		streamer:         streamer,
		env:              env,
		validBaseURL:     llm.IsValidBaseURL,
		streamTimeout:    streamTimeout,
		firstByteTimeout: constants.ProviderConnectTimeout,
		logger:           logger,
	}
}

// resolve merges request values over the environment. Non-empty request
// values win; the prompt falls back to the default extraction prompt.
func (s *ExtractService) resolve(req models.ExtractRequest) llm.StreamRequest {
	out := llm.StreamRequest{
		BaseURL:  firstNonEmpty(req.BaseURL, s.env.BaseURL),
		ModelID:  firstNonEmpty(req.ModelID, s.env.ModelID),
		APIKey:   firstNonEmpty(req.APIKey, s.env.APIKey),
		Prompt:   firstNonEmpty(req.CustomPrompt, s.env.CustomPrompt, constants.DefaultExtractionPrompt),
		ImageURL: llm.BuildImageURL(req.ImageBase64),
	}
	return out
}

// Extract validates req and streams the page into out. A *RequestError is
// returned when nothing has been written. Once the stream has begun,
// provider failures are reported in-band with the stream error marker.
func (s *ExtractService) Extract(ctx context.Context, req models.ExtractRequest, out ResponseStream) error {
	logger := logging.FromContext(ctx, s.logger)

	if len(req.ImageBase64) > constants.MaxImageBase64Bytes {
		return &RequestError{Status: http.StatusRequestEntityTooLarge, Message: MsgImageTooLarge}
	}
	sreq := s.resolve(req)
	if req.ImageBase64 == "" || sreq.BaseURL == "" || sreq.ModelID == "" || sreq.APIKey == "" {
		return &RequestError{Status: http.StatusBadRequest, Message: MsgMissingConfig}
	}
	if !s.validBaseURL(sreq.BaseURL) {
		return &RequestError{Status: http.StatusBadRequest, Message: MsgInvalidBaseURL, Err: llm.ErrInvalidBaseURL}
	}

	reqCtx := ctx
	ctx, cancelTimeout := context.WithTimeout(ctx, s.streamTimeout)
	defer cancelTimeout()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	firstByte := time.AfterFunc(s.firstByteTimeout, func() { cancel(errFirstByteTimeout) })
	defer firstByte.Stop()

	start := time.Now()
	began := false
	bytesOut := 0
	usage, err := s.streamer.Stream(ctx, sreq, func(delta string) error {
		if !began {
			firstByte.Stop()
			out.Begin()
			began = true
		}
		n, werr := io.WriteString(out, delta)
		bytesOut += n
		if werr != nil {
			return werr
		}
		out.Flush()
		return nil
	})

	if err != nil && !began {
		if errors.Is(context.Cause(ctx), errFirstByteTimeout) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("provider did not respond", "model", sreq.ModelID, "timeout", s.firstByteTimeout)
			return &RequestError{Status: http.StatusGatewayTimeout, Message: constants.GetErrorMessage(constants.ErrorCategoryTimeout), Err: err}
		}
		if reqCtx.Err() != nil {
			return reqCtx.Err()
		}
		logger.Warn("extraction failed before streaming", "model", sreq.ModelID, "error", err)
		return &RequestError{Status: http.StatusBadGateway, Message: providerMessage(err), Err: err}
	}

	if !began {
		out.Begin()
	}

	if err != nil {
		if reqCtx.Err() != nil {
			logger.Info("client went away mid-stream", "bytes", bytesOut)
			return reqCtx.Err()
		}
		logger.Warn("extraction stream interrupted", "model", sreq.ModelID, "bytes", bytesOut, "error", err)
		msg := providerMessage(err)
		if ctx.Err() != nil {
			msg = constants.GetErrorMessage(constants.ErrorCategoryTimeout)
		}
		_, _ = io.WriteString(out, sentinel.FormatStreamError(msg))
		out.Flush()
		return nil
	}

	if usage != nil {
		_, _ = io.WriteString(out, sentinel.FormatUsage(*usage))
		out.Flush()
	}
	logger.Info("page extracted",
		"model", sreq.ModelID,
		"bytes", bytesOut,
		"duration_ms", time.Since(start).Milliseconds(),
		"usage", usage != nil,
	)
	return nil
}

func providerMessage(err error) string {
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return pe.Error()
	}
	return fmt.Sprintf("provider request failed: %v", err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/llm"
	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/sentinel"
)

// ========================================
// Test doubles
// ========================================

type fakeStreamer struct {
	deltas []string
	usage  *models.Usage
	err    error
	block  bool
	got    llm.StreamRequest
}

func (f *fakeStreamer) Stream(ctx context.Context, req llm.StreamRequest, onDelta func(string) error) (*models.Usage, error) {
	f.got = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.usage, nil
}

type recorder struct {
	strings.Builder
	began   int
	flushes int
}

func (r *recorder) Begin() { r.began++ }
func (r *recorder) Flush() { r.flushes++ }

func newTestExtractService(s Streamer, env ExtractEnv) *ExtractService {
	svc := NewExtractService(s, env, time.Minute, logging.Discard())
	return svc
}

func fullEnv() ExtractEnv {
	return ExtractEnv{BaseURL: "https://api.example.com/v1", ModelID: "vision-1", APIKey: "sk-env"}
}

// ========================================
// Validation
// ========================================

func TestExtract_ImageTooLarge(t *testing.T) {
	svc := newTestExtractService(&fakeStreamer{}, fullEnv())
	req := models.ExtractRequest{ImageBase64: strings.Repeat("a", constants.MaxImageBase64Bytes+1)}

	err := svc.Extract(context.Background(), req, &recorder{})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", reqErr.Status)
	}
	if reqErr.Message != MsgImageTooLarge {
		t.Errorf("message = %q", reqErr.Message)
	}
}

func TestExtract_MissingConfig(t *testing.T) {
	tests := []struct {
		name string
		env  ExtractEnv
		req  models.ExtractRequest
	}{
		{"no image", fullEnv(), models.ExtractRequest{}},
		{"no env no request", ExtractEnv{}, models.ExtractRequest{ImageBase64: "aGk="}},
		{"missing key", ExtractEnv{BaseURL: "https://api.example.com", ModelID: "m"}, models.ExtractRequest{ImageBase64: "aGk="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeStreamer{}
			svc := newTestExtractService(fs, tt.env)
			rec := &recorder{}

			err := svc.Extract(context.Background(), tt.req, rec)

			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected RequestError, got %v", err)
			}
			if reqErr.Status != http.StatusBadRequest || reqErr.Message != MsgMissingConfig {
				t.Errorf("got %d %q", reqErr.Status, reqErr.Message)
			}
			if rec.began != 0 {
				t.Error("stream should not have begun")
			}
		})
	}
}

func TestExtract_InvalidBaseURL(t *testing.T) {
	svc := newTestExtractService(&fakeStreamer{}, fullEnv())
	req := models.ExtractRequest{ImageBase64: "aGk=", BaseURL: "http://127.0.0.1:8080/v1"}

	err := svc.Extract(context.Background(), req, &recorder{})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", reqErr.Status)
	}
	if !errors.Is(err, llm.ErrInvalidBaseURL) {
		t.Error("expected ErrInvalidBaseURL in chain")
	}
}

// ========================================
// Resolution
// ========================================

func TestExtract_RequestOverridesEnv(t *testing.T) {
	fs := &fakeStreamer{deltas: []string{"# Hi"}}
	svc := newTestExtractService(fs, fullEnv())
	req := models.ExtractRequest{
		ImageBase64:  "aGk=",
		ModelID:      "vision-2",
		CustomPrompt: "Just the tables.",
	}

	if err := svc.Extract(context.Background(), req, &recorder{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fs.got.ModelID != "vision-2" {
		t.Errorf("model = %q, want request value", fs.got.ModelID)
	}
	if fs.got.APIKey != "sk-env" || fs.got.BaseURL != "https://api.example.com/v1" {
		t.Errorf("env fallback not applied: %+v", fs.got)
	}
	if fs.got.Prompt != "Just the tables." {
		t.Errorf("prompt = %q", fs.got.Prompt)
	}
	if fs.got.ImageURL != llm.DataURLPrefix+"aGk=" {
		t.Errorf("image url = %q", fs.got.ImageURL)
	}
}

func TestExtract_DefaultPrompt(t *testing.T) {
	fs := &fakeStreamer{}
	svc := newTestExtractService(fs, fullEnv())

	if err := svc.Extract(context.Background(), models.ExtractRequest{ImageBase64: "aGk="}, &recorder{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.got.Prompt != constants.DefaultExtractionPrompt {
		t.Error("expected default extraction prompt")
	}

	env := fullEnv()
	env.CustomPrompt = "server prompt"
	fs = &fakeStreamer{}
	svc = newTestExtractService(fs, env)
	if err := svc.Extract(context.Background(), models.ExtractRequest{ImageBase64: "aGk="}, &recorder{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.got.Prompt != "server prompt" {
		t.Errorf("prompt = %q, want server prompt", fs.got.Prompt)
	}
}

// ========================================
// Streaming
// ========================================

func TestExtract_StreamsWithUsage(t *testing.T) {
	fs := &fakeStreamer{
		deltas: []string{"# Title\n\n", "Body text."},
		usage:  &models.Usage{PromptTokens: 900, CompletionTokens: 42},
	}
	svc := newTestExtractService(fs, fullEnv())
	rec := &recorder{}

	if err := svc.Extract(context.Background(), models.ExtractRequest{ImageBase64: "aGk="}, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.began != 1 {
		t.Errorf("Begin called %d times, want 1", rec.began)
	}
	res := sentinel.Parse(rec.String())
	if res.Markdown != "# Title\n\nBody text." {
		t.Errorf("markdown = %q", res.Markdown)
	}
	if res.Usage == nil || res.Usage.PromptTokens != 900 || res.Usage.CompletionTokens != 42 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestExtract_NoUsage(t *testing.T) {
	fs := &fakeStreamer{deltas: []string{"text"}}
	svc := newTestExtractService(fs, fullEnv())
	rec := &recorder{}

	if err := svc.Extract(context.Background(), models.ExtractRequest{ImageBase64: "aGk="}, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.String() != "text" {
		t.Errorf("body = %q", rec.String())
	}
}

func TestExtract_EmptyStreamStillBegins(t *testing.T) {
	svc := newTestExtractService(&fakeStreamer{}, fullEnv())
	rec := &recorder{}

	if err := svc.Extract(context.Background(), models.ExtractRequest{ImageBase64: "aGk="}, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.began != 1 {
		t.Errorf("Begin called %d times, want 1", rec.began)
	}
}

func TestExtract_ProviderFailsBeforeStreaming(t *testing.T) {
	perr := llm.ClassifyError(errors.New("unauthorized"), "vision-1", http.StatusUnauthorized)
	svc := newTestExtractService(&fakeStreamer{err: perr}, fullEnv())
	rec := &recorder{}

	err := svc.Extract(context.Background(), models.ExtractRequest{ImageBase64: "aGk="}, rec)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", reqErr.Status)
	}
	if !strings.Contains(reqErr.Message, constants.GetErrorMessage(constants.ErrorCategoryInvalidKey)) {
		t.Errorf("message = %q", reqErr.Message)
	}
	if rec.began != 0 || rec.Len() != 0 {
		t.Error("nothing should be written before a 502")
	}
}

func TestExtract_MidStreamErrorWritesMarker(t *testing.T) {
	fs := &fakeStreamer{
		deltas: []string{"partial "},
		err:    llm.ClassifyError(errors.New("upstream reset"), "vision-1", http.StatusBadGateway),
	}
	svc := newTestExtractService(fs, fullEnv())
	rec := &recorder{}

	if err := svc.Extract(context.Background(), models.ExtractRequest{ImageBase64: "aGk="}, rec); err != nil {
		t.Fatalf("mid-stream failures are reported in-band, got %v", err)
	}

	res := sentinel.Parse(rec.String())
	if !res.Failed() {
		t.Fatalf("expected stream error marker in %q", rec.String())
	}
	if res.Markdown != "" {
		t.Errorf("markdown should be empty on failure, got %q", res.Markdown)
	}
}

func TestExtract_FirstByteTimeout(t *testing.T) {
	svc := newTestExtractService(&fakeStreamer{block: true}, fullEnv())
	svc.firstByteTimeout = 20 * time.Millisecond
	rec := &recorder{}

	err := svc.Extract(context.Background(), models.ExtractRequest{ImageBase64: "aGk="}, rec)

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if reqErr.Status != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", reqErr.Status)
	}
}

func TestExtract_ClientGone(t *testing.T) {
	svc := newTestExtractService(&fakeStreamer{block: true}, fullEnv())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Extract(ctx, models.ExtractRequest{ImageBase64: "aGk="}, &recorder{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/logging"
)

// ========================================
// BuildImageURL Tests
// ========================================

func TestBuildImageURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"iVBORw0KGgo=", "data:image/png;base64,iVBORw0KGgo="},
		{"data:image/jpeg;base64,/9j/", "data:image/jpeg;base64,/9j/"},
		{"", "data:image/png;base64,"},
	}
	for _, tt := range tests {
		if got := BuildImageURL(tt.in); got != tt.want {
			t.Errorf("BuildImageURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ========================================
// Stream Tests
// ========================================

func sseChunk(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"vision-1","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`+"\n\n", content)
}

const sseUsage = `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"vision-1","choices":[],"usage":{"prompt_tokens":120,"completion_tokens":45,"total_tokens":165}}` + "\n\n"

func TestProviderStream_Deltas(t *testing.T) {
	var body map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseChunk("# Title"))
		_, _ = io.WriteString(w, sseChunk("\n\nBody"))
		_, _ = io.WriteString(w, sseUsage)
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewProvider(srv.Client(), logging.Discard())
	var got strings.Builder
	usage, err := p.Stream(context.Background(), StreamRequest{
		BaseURL:  srv.URL + "/v1",
		ModelID:  "vision-1",
		APIKey:   "sk-test",
		Prompt:   "extract",
		ImageURL: BuildImageURL("AAAA"),
	}, func(s string) error {
		got.WriteString(s)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if got.String() != "# Title\n\nBody" {
		t.Errorf("content = %q", got.String())
	}
	if usage == nil || usage.PromptTokens != 120 || usage.CompletionTokens != 45 {
		t.Errorf("usage = %+v, want 120/45", usage)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if body["model"] != "vision-1" || body["stream"] != true {
		t.Errorf("request body model/stream = %v/%v", body["model"], body["stream"])
	}
	if !strings.Contains(fmt.Sprint(body["messages"]), "data:image/png;base64,AAAA") {
		t.Errorf("image url missing from messages: %v", body["messages"])
	}
}

func TestProviderStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p := NewProvider(srv.Client(), logging.Discard())
	calls := 0
	_, err := p.Stream(context.Background(), StreamRequest{BaseURL: srv.URL, ModelID: "m", APIKey: "bad"}, func(string) error {
		calls++
		return nil
	})

	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %T %v, want *ProviderError", err, err)
	}
	if pe.StatusCode != http.StatusUnauthorized || pe.Category != constants.ErrorCategoryInvalidKey {
		t.Errorf("status/category = %d/%q", pe.StatusCode, pe.Category)
	}
	if calls != 0 {
		t.Errorf("onDelta called %d times", calls)
	}
}

func TestProviderStream_CallbackAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseChunk("one"))
		_, _ = io.WriteString(w, sseChunk("two"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	stop := errors.New("client went away")
	p := NewProvider(srv.Client(), logging.Discard())
	calls := 0
	_, err := p.Stream(context.Background(), StreamRequest{BaseURL: srv.URL, ModelID: "m", APIKey: "k"}, func(string) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Errorf("error = %v, want callback error", err)
	}
	if calls != 1 {
		t.Errorf("onDelta called %d times, want 1", calls)
	}
}

// Package client talks to a pagemark server: page extraction, DOCX
// conversion, configuration probing and export upload.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/pagemark/internal/version"
)

// DefaultTimeout bounds non-streaming calls when Config.Timeout is zero.
const DefaultTimeout = 3 * time.Minute

// Client communicates with the pagemark server.
type Client struct {
	baseURL     string
	accessToken string
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

// Config holds configuration for the client.
type Config struct {
	BaseURL     string
	AccessToken string

	// Timeout applies to non-streaming calls. Extraction streams are bounded
	// only by the caller's context.
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New creates a new server client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		timeout:     timeout,
		httpClient:  httpClient,
		logger:      logger,
	}
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.Get().UserAgent())
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	return req, nil
}

// errorDetail extracts a human-readable message from a failed response:
// the JSON "error" field when present, else the raw body, else the status text.
func errorDetail(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	text := strings.TrimSpace(string(raw))

	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Error != "":
			return body.Error
		case body.Detail != "":
			return body.Detail
		}
	}
	if text != "" {
		return text
	}
	if st := http.StatusText(resp.StatusCode); st != "" {
		return st
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

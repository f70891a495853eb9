package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/jmylchreest/pagemark/internal/logging"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/sentinel"
)

// Extractor extracts a single page. Failures that are not cancellation come
// back as an error-status result with a nil error.
type Extractor interface {
	Extract(ctx context.Context, req PageRequest, onStream func(string)) (models.PageResult, error)
}

// PageRequest is one page to extract.
type PageRequest struct {
	ImageDataURL string
	ImageIndex   int
	Config       models.ResolvedModelConfig
}

// Extract posts a page image to /api/extract and streams the Markdown back.
// onStream, when set, receives the whole accumulated text after each chunk.
func (c *Client) Extract(ctx context.Context, req PageRequest, onStream func(string)) (models.PageResult, error) {
	result := models.NewPendingResult(req.ImageIndex)
	logger := logging.FromContext(logging.WithPage(ctx, result.PageNumber), c.logger)

	fail := func(detail string) (models.PageResult, error) {
		result.Status = models.PageStatusError
		result.Markdown = ""
		result.ErrorMessage = fmt.Sprintf("page %d extraction failed: %s", result.PageNumber, detail)
		logger.Warn("page extraction failed", "error", detail)
		return result, nil
	}

	body, err := json.Marshal(models.ExtractRequest{
		ImageBase64:  req.ImageDataURL,
		BaseURL:      req.Config.BaseURL,
		ModelID:      req.Config.ModelID,
		APIKey:       req.Config.APIKey,
		CustomPrompt: req.Config.CustomPrompt,
	})
	if err != nil {
		return fail(err.Error())
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/extract", bytes.NewReader(body))
	if err != nil {
		return fail(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if cerr := canceled(ctx, err); cerr != nil {
			return result, cerr
		}
		return fail(err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(errorDetail(resp))
	}

	var buf strings.Builder
	chunk := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if onStream != nil {
				onStream(completeRunes(buf.String()))
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if cerr := canceled(ctx, rerr); cerr != nil {
				return result, cerr
			}
			return fail("stream read failed: " + rerr.Error())
		}
	}

	parsed := sentinel.Parse(buf.String())
	if parsed.Failed() {
		return fail(parsed.StreamError)
	}

	result.Status = models.PageStatusSuccess
	result.Markdown = parsed.Markdown
	result.Usage = parsed.Usage
	logger.Debug("page extracted", "bytes", len(parsed.Markdown), "usage", parsed.Usage != nil)
	return result, nil
}

// canceled returns ctx.Err() when the failure happened because the caller
// gave up. Transport errors after cancellation are not always wrapped, so a
// done context is enough.
func canceled(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return nil
	}
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		logging.FromContext(ctx, slog.Default()).Debug("transport error after cancellation", "error", err)
	}
	return ctx.Err()
}

// completeRunes drops a multi-byte character cut off at the end of s, so
// the live view never shows half a character. Invalid bytes elsewhere are
// left alone.
func completeRunes(s string) string {
	i := len(s) - 1
	for i > 0 && len(s)-i < utf8.UTFMax && !utf8.RuneStart(s[i]) {
		i--
	}
	if i >= 0 && !utf8.FullRuneInString(s[i:]) {
		return s[:i]
	}
	return s
}

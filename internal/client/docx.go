package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/jmylchreest/pagemark/internal/models"
)

// ConvertDocx uploads a DOCX file to /api/convert-docx.
func (c *Client) ConvertDocx(ctx context.Context, name string, data []byte) (models.DocxResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return models.DocxResult{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return models.DocxResult{}, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return models.DocxResult{}, fmt.Errorf("failed to build upload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/convert-docx", &body)
	if err != nil {
		return models.DocxResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.DocxResult{}, fmt.Errorf("convert request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return models.DocxResult{}, errors.New(errorDetail(resp))
	}

	var out models.DocxResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.DocxResult{}, fmt.Errorf("failed to decode convert response: %w", err)
	}
	if !out.Success || out.Data == nil {
		if out.Error != "" {
			return models.DocxResult{}, errors.New(out.Error)
		}
		return models.DocxResult{}, errors.New("conversion returned no data")
	}
	return *out.Data, nil
}

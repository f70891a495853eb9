package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmylchreest/pagemark/internal/models"
)

// UploadExport stores assembled Markdown through POST /api/v1/exports.
func (c *Client) UploadExport(ctx context.Context, fileName, markdown string) (models.ExportResult, error) {
	body, err := json.Marshal(models.ExportRequest{FileName: fileName, Markdown: markdown})
	if err != nil {
		return models.ExportResult{}, fmt.Errorf("failed to marshal export: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/exports", bytes.NewReader(body))
	if err != nil {
		return models.ExportResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.ExportResult{}, fmt.Errorf("export upload failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return models.ExportResult{}, errors.New(errorDetail(resp))
	}

	var out models.ExportResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.ExportResult{}, fmt.Errorf("failed to decode export response: %w", err)
	}
	return out, nil
}

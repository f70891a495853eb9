package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmylchreest/pagemark/internal/models"
)

// ProbeConfig fetches the server's environment configuration from /api/config.
func (c *Client) ProbeConfig(ctx context.Context) (models.EnvConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/config", nil)
	if err != nil {
		return models.EnvConfig{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.EnvConfig{}, fmt.Errorf("config probe failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return models.EnvConfig{}, fmt.Errorf("config probe returned %d: %s", resp.StatusCode, errorDetail(resp))
	}

	var out models.ConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.EnvConfig{}, fmt.Errorf("failed to decode config response: %w", err)
	}
	if !out.Success {
		return models.EnvConfig{}, errors.New("config probe was not successful")
	}
	return out.Data, nil
}

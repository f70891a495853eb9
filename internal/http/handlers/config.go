package handlers

import (
	"context"

	"github.com/jmylchreest/pagemark/internal/models"
)

// EnvConfigSource publishes the server's presence-only provider config.
type EnvConfigSource interface {
	EnvConfig() models.EnvConfig
}

// ConfigHandler serves GET /api/config.
type ConfigHandler struct {
	src EnvConfigSource
}

// NewConfigHandler creates a config handler.
func NewConfigHandler(src EnvConfigSource) *ConfigHandler {
	return &ConfigHandler{src: src}
}

// GetConfigOutput is the config probe response.
type GetConfigOutput struct {
	Body models.ConfigResponse
}

// GetConfig reports which provider settings the server holds. Secrets are
// reduced to presence flags.
func (h *ConfigHandler) GetConfig(ctx context.Context, input *struct{}) (*GetConfigOutput, error) {
	return &GetConfigOutput{Body: models.ConfigResponse{Success: true, Data: h.src.EnvConfig()}}, nil
}

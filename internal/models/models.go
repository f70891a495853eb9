// Package models defines the domain models shared by the pipeline, the
// settings store and the HTTP layer.
package models

import "time"

// PageStatus is the lifecycle state of a single page in an extraction run.
type PageStatus string

const (
	PageStatusPending    PageStatus = "pending"
	PageStatusExtracting PageStatus = "extracting"
	PageStatusSuccess    PageStatus = "success"
	PageStatusError      PageStatus = "error"
	PageStatusSkipped    PageStatus = "skipped"
)

// IsTerminal reports whether the status ends a page's run (retry aside).
func (s PageStatus) IsTerminal() bool {
	return s == PageStatusSuccess || s == PageStatusError || s == PageStatusSkipped
}

// Usage is the token accounting reported by the provider for one page.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// PageResult is one entry per selected page.
type PageResult struct {
	ImageIndex   int        `json:"imageIndex"` // 0-based index into the rendered page sequence
	PageNumber   int        `json:"pageNumber"` // ImageIndex + 1
	Status       PageStatus `json:"status"`
	Markdown     string     `json:"markdown"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	Usage        *Usage     `json:"usage,omitempty"`
}

// NewPendingResult returns a pending result for the given image index.
func NewPendingResult(imageIndex int) PageResult {
	return PageResult{
		ImageIndex: imageIndex,
		PageNumber: imageIndex + 1,
		Status:     PageStatusPending,
	}
}

// RateLimitConfig holds the three independent admission quotas.
// Zero values mean "not limited".
type RateLimitConfig struct {
	MaxRequests              int `json:"maxRequests,omitempty" yaml:"maxRequests,omitempty"`
	RequestWindowSeconds     int `json:"requestWindowSeconds,omitempty" yaml:"requestWindowSeconds,omitempty"`
	MaxInputTokensPerMinute  int `json:"maxInputTokensPerMinute,omitempty" yaml:"maxInputTokensPerMinute,omitempty"`
	MaxOutputTokensPerMinute int `json:"maxOutputTokensPerMinute,omitempty" yaml:"maxOutputTokensPerMinute,omitempty"`
}

// Enabled reports whether any quota is set. RequestWindowSeconds alone does not count.
func (c *RateLimitConfig) Enabled() bool {
	if c == nil {
		return false
	}
	return c.MaxRequests > 0 || c.MaxInputTokensPerMinute > 0 || c.MaxOutputTokensPerMinute > 0
}

// ModelConfig is a user-authored provider configuration.
// APIKey holds the encoded (obfuscated or encrypted) value as stored.
type ModelConfig struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	BaseURL      string           `json:"baseUrl"`
	ModelID      string           `json:"modelId"`
	APIKey       string           `json:"apiKey"`
	CustomPrompt string           `json:"customPrompt,omitempty"`
	IsActive     bool             `json:"isActive"`
	RateLimit    *RateLimitConfig `json:"rateLimit,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// ResolvedModelConfig is the decoded snapshot used to build one page request.
// Empty fields are filled by the server from its environment.
type ResolvedModelConfig struct {
	BaseURL      string
	ModelID      string
	APIKey       string
	CustomPrompt string
}

// EnvConfig is the environment-sourced fallback configuration.
type EnvConfig struct {
	BaseURL      string           `json:"baseUrl"`
	ModelID      string           `json:"modelId"`
	HasAPIKey    bool             `json:"hasApiKey"`
	IsConfigured bool             `json:"isConfigured"`
	RequiresAuth bool             `json:"requiresAuth"`
	RateLimit    *RateLimitConfig `json:"rateLimit,omitempty"`
}

// DocxResult is the outcome of a DOCX conversion.
type DocxResult struct {
	Markdown string   `json:"markdown"`
	Messages []string `json:"messages"`
}

// ExtractRequest is the JSON body of POST /api/extract.
type ExtractRequest struct {
	ImageBase64  string `json:"imageBase64"`
	BaseURL      string `json:"baseUrl,omitempty"`
	ModelID      string `json:"modelId,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	CustomPrompt string `json:"customPrompt,omitempty"`
}

// DocxResponse is the JSON body returned by POST /api/convert-docx.
type DocxResponse struct {
	Success bool        `json:"success"`
	Data    *DocxResult `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ConfigResponse is the JSON body returned by GET /api/config.
type ConfigResponse struct {
	Success bool      `json:"success"`
	Data    EnvConfig `json:"data"`
}

// ExportRequest is the JSON body of POST /api/v1/exports.
type ExportRequest struct {
	FileName string `json:"fileName" minLength:"1" maxLength:"255" doc:"Name of the source document"`
	Markdown string `json:"markdown" minLength:"1" doc:"Assembled Markdown to store"`
}

// ExportResult describes a stored export.
type ExportResult struct {
	Key  string `json:"key" doc:"Object key in the export bucket"`
	URL  string `json:"url,omitempty" doc:"Public URL when the bucket has one"`
	Size int    `json:"size" doc:"Stored size in bytes"`
}

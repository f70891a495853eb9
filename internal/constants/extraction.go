// Package constants defines centralized limits and defaults for extraction.
package constants

import "time"

// Request size limits enforced at the HTTP boundary.
const (
	// MaxImageBase64Bytes caps the encoded image in an extract request.
	// Base64 inflates by ~4/3, so this is roughly 15MB of raw image.
	MaxImageBase64Bytes = 20 * 1024 * 1024

	// MaxExtractBodyBytes leaves headroom above the image for the other JSON fields.
	MaxExtractBodyBytes = MaxImageBase64Bytes + 64*1024

	// MaxDocxBytes caps uploaded DOCX files.
	MaxDocxBytes = 100 * 1024 * 1024

	// MaxExportBytes caps assembled markdown accepted for export upload.
	MaxExportBytes = 50 * 1024 * 1024

	// DefaultBodyLimit applies to every other endpoint.
	DefaultBodyLimit = 1 * 1024 * 1024
)

// Server timeouts.
const (
	// DefaultRequestTimeout is the timeout for most API endpoints.
	DefaultRequestTimeout = 60 * time.Second

	// DocxRequestTimeout is the extended timeout for DOCX conversion.
	DocxRequestTimeout = 3 * time.Minute

	// ProviderConnectTimeout bounds the wait for the provider's first streamed byte.
	ProviderConnectTimeout = 2 * time.Minute

	// StreamTimeout caps a whole streamed page extraction.
	StreamTimeout = 10 * time.Minute
)

// Rendering defaults.
const (
	// DefaultRenderDPI is the resolution used to rasterize PDF pages.
	DefaultRenderDPI = 144.0

	// MaxRenderDPI caps user-provided DPI.
	MaxRenderDPI = 400.0

	// MaxRenderPages caps how many pages of a PDF are rasterized.
	MaxRenderPages = 50
)

// Retry backoff used by the CLI when re-running failed pages.
const (
	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff = 2 * time.Second

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff = 30 * time.Second

	// BackoffMultiplier is the factor by which backoff increases after each retry.
	BackoffMultiplier = 2.0
)

// CalculateBackoff returns the delay before retry attempt n (0-based).
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		return InitialBackoff
	}
	backoff := float64(InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= BackoffMultiplier
		if time.Duration(backoff) >= MaxBackoff {
			return MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// ErrorCategory classifies provider failures.
type ErrorCategory string

const (
	ErrorCategoryRateLimit        ErrorCategory = "rate_limit"
	ErrorCategoryInvalidKey       ErrorCategory = "invalid_key"
	ErrorCategoryModelNotFound    ErrorCategory = "model_not_found"
	ErrorCategoryModelUnsupported ErrorCategory = "model_unsupported"
	ErrorCategoryContentTooLong   ErrorCategory = "content_too_long"
	ErrorCategoryProviderError    ErrorCategory = "provider_error"
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// IsRetryableCategory returns true if the same request may succeed later.
func IsRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryRateLimit, ErrorCategoryProviderError, ErrorCategoryTimeout:
		return true
	default:
		return false
	}
}

// ErrorMessages maps error categories to user-facing messages.
var ErrorMessages = map[ErrorCategory]string{
	ErrorCategoryRateLimit:        "The model provider is rate limiting requests. Wait a moment and retry the page.",
	ErrorCategoryInvalidKey:       "The model provider rejected the API key.",
	ErrorCategoryModelNotFound:    "The configured model was not found at the provider.",
	ErrorCategoryModelUnsupported: "The configured model does not accept image input.",
	ErrorCategoryContentTooLong:   "The page image is too large for the model's context.",
	ErrorCategoryProviderError:    "The model provider returned a temporary error.",
	ErrorCategoryTimeout:          "The model provider took too long to respond.",
	ErrorCategoryUnknown:          "The model provider request failed.",
}

// GetErrorMessage returns the user-facing message for a category.
func GetErrorMessage(category ErrorCategory) string {
	if msg, ok := ErrorMessages[category]; ok {
		return msg
	}
	return ErrorMessages[ErrorCategoryUnknown]
}

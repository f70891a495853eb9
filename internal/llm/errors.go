// Package llm talks to OpenAI-compatible multimodal providers and classifies
// their failures for the extract endpoint.
package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmylchreest/pagemark/internal/constants"
)

// Error categories for provider operations.
var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrRateLimited      = errors.New("rate limited")
	ErrProviderError    = errors.New("provider error")
)

// ProviderError is a classified failure from the model provider.
type ProviderError struct {
	// Original error from the provider
	Err error

	// HTTP status code (if applicable)
	StatusCode int

	// Model that was being used
	Model string

	// User-facing message
	UserMessage string

	// Raw error message from the provider
	RawMessage string

	Category  constants.ErrorCategory
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.UserMessage != "" && e.RawMessage != "" && e.RawMessage != e.UserMessage {
		return e.UserMessage + " (" + e.RawMessage + ")"
	}
	if e.UserMessage != "" {
		return e.UserMessage
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown provider error"
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ClassifyError turns a provider failure into a ProviderError. statusCode is 0
// when no HTTP response was received.
func ClassifyError(err error, model string, statusCode int) *ProviderError {
	if err == nil {
		return nil
	}

	pe := &ProviderError{
		Err:        err,
		StatusCode: statusCode,
		Model:      model,
		RawMessage: err.Error(),
	}
	errStr := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		pe.Category = constants.ErrorCategoryTimeout
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		pe.Err = errors.Join(ErrInvalidAPIKey, err)
		pe.Category = constants.ErrorCategoryInvalidKey
	case statusCode == http.StatusNotFound:
		pe.Err = errors.Join(ErrModelUnavailable, err)
		pe.Category = constants.ErrorCategoryModelNotFound
	case statusCode == http.StatusTooManyRequests:
		pe.Err = errors.Join(ErrRateLimited, err)
		pe.Category = constants.ErrorCategoryRateLimit
	case statusCode == http.StatusRequestEntityTooLarge:
		pe.Category = constants.ErrorCategoryContentTooLong
	case statusCode >= 500:
		pe.Err = errors.Join(ErrProviderError, err)
		pe.Category = constants.ErrorCategoryProviderError
	default:
		pe.Category = classifyByMessage(errStr)
	}

	pe.UserMessage = constants.GetErrorMessage(pe.Category)
	pe.Retryable = constants.IsRetryableCategory(pe.Category)
	return pe
}

func classifyByMessage(errStr string) constants.ErrorCategory {
	switch {
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "too many requests"):
		return constants.ErrorCategoryRateLimit
	case strings.Contains(errStr, "context length") || strings.Contains(errStr, "too many tokens") ||
		strings.Contains(errStr, "maximum context"):
		return constants.ErrorCategoryContentTooLong
	case strings.Contains(errStr, "image") && (strings.Contains(errStr, "not support") || strings.Contains(errStr, "unsupported")):
		return constants.ErrorCategoryModelUnsupported
	case strings.Contains(errStr, "api key") || strings.Contains(errStr, "unauthorized"):
		return constants.ErrorCategoryInvalidKey
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return constants.ErrorCategoryTimeout
	default:
		return constants.ErrorCategoryUnknown
	}
}

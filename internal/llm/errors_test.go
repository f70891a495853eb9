package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jmylchreest/pagemark/internal/constants"
)

func TestClassifyError_Nil(t *testing.T) {
	if got := ClassifyError(nil, "m", 500); got != nil {
		t.Errorf("ClassifyError(nil) = %v, want nil", got)
	}
}

func TestClassifyError_ByStatus(t *testing.T) {
	tests := []struct {
		status    int
		category  constants.ErrorCategory
		sentinel  error
		retryable bool
	}{
		{401, constants.ErrorCategoryInvalidKey, ErrInvalidAPIKey, false},
		{403, constants.ErrorCategoryInvalidKey, ErrInvalidAPIKey, false},
		{404, constants.ErrorCategoryModelNotFound, ErrModelUnavailable, false},
		{429, constants.ErrorCategoryRateLimit, ErrRateLimited, true},
		{500, constants.ErrorCategoryProviderError, ErrProviderError, true},
		{503, constants.ErrorCategoryProviderError, ErrProviderError, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			base := errors.New("upstream said no")
			got := ClassifyError(base, "vision-1", tt.status)
			if got.Category != tt.category {
				t.Errorf("Category = %q, want %q", got.Category, tt.category)
			}
			if !errors.Is(got, tt.sentinel) {
				t.Errorf("errors.Is(%v) = false", tt.sentinel)
			}
			if !errors.Is(got, base) {
				t.Error("original error should remain reachable")
			}
			if got.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", got.Retryable, tt.retryable)
			}
			if !strings.Contains(got.Error(), "upstream said no") {
				t.Errorf("Error() = %q, want raw message included", got.Error())
			}
		})
	}
}

func TestClassifyError_ByMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want constants.ErrorCategory
	}{
		{"Rate limit reached for requests", constants.ErrorCategoryRateLimit},
		{"This model's maximum context length is 8192 tokens", constants.ErrorCategoryContentTooLong},
		{"image input is not supported by this model", constants.ErrorCategoryModelUnsupported},
		{"Incorrect API key provided", constants.ErrorCategoryInvalidKey},
		{"dial tcp: i/o timeout", constants.ErrorCategoryTimeout},
		{"something odd", constants.ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ClassifyError(errors.New(tt.msg), "m", 400); got.Category != tt.want {
				t.Errorf("Category = %q, want %q", got.Category, tt.want)
			}
		})
	}
}

func TestClassifyError_Deadline(t *testing.T) {
	got := ClassifyError(fmt.Errorf("stream: %w", context.DeadlineExceeded), "m", 0)
	if got.Category != constants.ErrorCategoryTimeout {
		t.Errorf("Category = %q, want timeout", got.Category)
	}
	if !got.Retryable {
		t.Error("timeouts should be retryable")
	}
}

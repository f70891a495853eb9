// Package pipeline drives a document through page selection and sequential
// page extraction under an admission controller.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/jmylchreest/pagemark/internal/models"
)

// Step is the stage of a session.
type Step string

const (
	StepUpload  Step = "upload"
	StepSelect  Step = "select"
	StepExtract Step = "extract"
	StepDone    Step = "done"
)

var (
	// ErrConfigMissing is returned when neither a user model config nor a
	// server environment config is available.
	ErrConfigMissing = errors.New("no model configuration available")

	ErrBusy        = errors.New("extraction already in progress")
	ErrNoPages     = errors.New("no pages selected")
	ErrInvalidPage = errors.New("page index out of range")
	ErrNoDocument  = errors.New("no document loaded")

	// ErrNotRetryable is returned by RetryPage for a page that already
	// succeeded. Only error and skipped pages can be retried.
	ErrNotRetryable = errors.New("page already extracted")
)

// Messages stored on pages that did not produce Markdown.
const (
	MsgRetryInterrupted = "retry interrupted"
	MsgConfigMissing    = "no model configuration available; add one or configure the server"
)

// ConfigSource resolves configuration at the moment a page is processed.
type ConfigSource interface {
	HasAnyConfig(ctx context.Context) bool
	ResolveModel(ctx context.Context) (models.ResolvedModelConfig, error)
	ResolveRateLimit(ctx context.Context) *models.RateLimitConfig
}

// DocxConverter converts a whole DOCX document server-side.
type DocxConverter interface {
	ConvertDocx(ctx context.Context, name string, data []byte) (models.DocxResult, error)
}

// Snapshot is a copy of the orchestrator's observable state.
type Snapshot struct {
	Step    Step
	Results []models.PageResult

	// StreamingText is the accumulated text of the page currently being
	// extracted; StreamingIndex is its position in Results or -1.
	StreamingText  string
	StreamingIndex int

	// WaitUntil is set while the run sleeps for admission.
	WaitUntil time.Time

	FileName  string
	PageCount int
	IsDocx    bool

	// Notices carries converter messages for DOCX sources.
	Notices []string

	version uint64
}

// Counts tallies results by status.
func (s Snapshot) Counts() map[models.PageStatus]int {
	out := make(map[models.PageStatus]int, 5)
	for _, r := range s.Results {
		out[r.Status]++
	}
	return out
}

// Finished reports how many results have reached a terminal status.
func (s Snapshot) Finished() int {
	n := 0
	for _, r := range s.Results {
		if r.Status.IsTerminal() {
			n++
		}
	}
	return n
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Results = append([]models.PageResult(nil), s.Results...)
	out.Notices = append([]string(nil), s.Notices...)
	return out
}

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/pipeline"
)

// ui prints status lines. Results go to out; status and progress go to errOut
// so that `extract --out -` stays pipeable.
type ui struct {
	out    io.Writer
	errOut io.Writer

	ok   func(a ...any) string
	warn func(a ...any) string
	bad  func(a ...any) string
	dim  func(a ...any) string
}

func newUI(out, errOut io.Writer) *ui {
	return &ui{
		out:    out,
		errOut: errOut,
		ok:     color.New(color.FgGreen).SprintFunc(),
		warn:   color.New(color.FgYellow).SprintFunc(),
		bad:    color.New(color.FgRed).SprintFunc(),
		dim:    color.New(color.Faint).SprintFunc(),
	}
}

func (u *ui) Success(format string, args ...any) {
	fmt.Fprintf(u.errOut, "%s %s\n", u.ok("✓"), fmt.Sprintf(format, args...))
}

func (u *ui) Warn(format string, args ...any) {
	fmt.Fprintf(u.errOut, "%s %s\n", u.warn("⚠"), fmt.Sprintf(format, args...))
}

func (u *ui) Fail(format string, args ...any) {
	fmt.Fprintf(u.errOut, "%s %s\n", u.bad("✗"), fmt.Sprintf(format, args...))
}

func (u *ui) Info(format string, args ...any) {
	fmt.Fprintf(u.errOut, "%s %s\n", u.dim("•"), fmt.Sprintf(format, args...))
}

// pageStatus renders a status word with its color.
func (u *ui) pageStatus(s models.PageStatus) string {
	switch s {
	case models.PageStatusSuccess:
		return u.ok(string(s))
	case models.PageStatusError:
		return u.bad(string(s))
	case models.PageStatusSkipped:
		return u.warn(string(s))
	default:
		return u.dim(string(s))
	}
}

// progress follows an orchestrator run on a progress bar.
type progress struct {
	bar *progressbar.ProgressBar
}

func newProgress(w io.Writer, total int, quiet bool) *progress {
	if quiet {
		return &progress{}
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("extracting"),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
	)
	return &progress{bar: bar}
}

// update is an orchestrator listener.
func (p *progress) update(snap pipeline.Snapshot) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(describe(snap, time.Now()))
	_ = p.bar.Set(snap.Finished())
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// describe summarizes what the run is doing right now.
func describe(snap pipeline.Snapshot, now time.Time) string {
	if !snap.WaitUntil.IsZero() {
		if wait := snap.WaitUntil.Sub(now); wait > 0 {
			return fmt.Sprintf("rate limited, resuming in %s", wait.Round(time.Second))
		}
	}
	if snap.StreamingIndex >= 0 && snap.StreamingIndex < len(snap.Results) {
		page := snap.Results[snap.StreamingIndex].PageNumber
		if n := len(snap.StreamingText); n > 0 {
			return fmt.Sprintf("page %d (%d chars)", page, n)
		}
		return fmt.Sprintf("page %d", page)
	}
	return "extracting"
}

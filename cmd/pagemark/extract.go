package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/pagemark/internal/constants"
	"github.com/jmylchreest/pagemark/internal/export"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/pagerange"
	"github.com/jmylchreest/pagemark/internal/pipeline"
	"github.com/jmylchreest/pagemark/internal/ratelimit"
	"github.com/jmylchreest/pagemark/internal/render"
	"github.com/jmylchreest/pagemark/internal/settings"
)

var errNothingExtracted = errors.New("no page produced any markdown")

// retryDelay is the wait before retry round n. Tests shorten it.
var retryDelay = constants.CalculateBackoff

type extractOptions struct {
	pages       string
	out         string
	upload      bool
	successOnly bool
	separators  bool
	retries     int
	quiet       bool
}

func newExtractCmd(a *app) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract a PDF, image or DOCX file to Markdown",
		Long: `Extract converts a document to Markdown.

PDF pages are rendered locally and extracted one at a time in the order
given by --pages. Images are extracted as a single page. DOCX files are
converted by the server.

Press Ctrl-C once to stop after keeping the pages finished so far, and
again to abort.`,
		Example: `  pagemark extract scan.pdf
  pagemark extract scan.pdf --pages "1-3, 7" --out -
  pagemark extract notes.docx --upload`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExtract(cmd.Context(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.pages, "pages", "p", "", `pages to extract, e.g. "1-3, 5" (default: all)`)
	f.StringVarP(&opts.out, "out", "o", "", `output file, "-" for stdout (default: <name>.md)`)
	f.BoolVar(&opts.upload, "upload", false, "also store the result in the server's export bucket")
	f.BoolVar(&opts.successOnly, "success-only", false, "leave failed and skipped pages out of the output")
	f.BoolVar(&opts.separators, "separators", false, "mark each page with a <!-- page N --> comment")
	f.IntVar(&opts.retries, "retries", 2, "retry rounds for failed pages")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func (a *app) runExtract(ctx context.Context, path string, opts *extractOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)

	kind := render.DetectKind(name)
	if kind == render.KindUnknown {
		kind = render.SniffKind(data)
	}
	if kind == render.KindUnknown {
		return fmt.Errorf("%w: %s", render.ErrUnsupported, name)
	}

	cl := a.newClient()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	env, err := cl.ProbeConfig(ctx)
	if err != nil {
		a.ui.Warn("could not read server configuration: %v", err)
	}

	orch := pipeline.New(pipeline.Options{
		Extractor: cl,
		Config:    settings.NewResolver(store, env, a.logger),
		Docx:      cl,
		OnConfigMissing: func() {
			a.ui.Info(`add a model with "pagemark config add" or "pagemark config preset", or set EXTRACT_* on the server`)
		},
		Logger: a.logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	intr := watchInterrupts(a, orch, cancel)
	defer intr.close()

	switch kind {
	case render.KindDOCX:
		a.ui.Info("converting %s on %s", name, cl.BaseURL())
		if err := orch.ConvertDocx(ctx, name, data); err != nil {
			return err
		}

	case render.KindImage:
		dataURL, err := render.ImageToDataURL(name, data)
		if err != nil {
			return err
		}
		if err := a.follow(orch, 1, opts.quiet, func() error {
			return orch.LoadImage(ctx, name, dataURL)
		}); err != nil {
			return err
		}

	case render.KindPDF:
		images, err := render.RenderPDF(ctx, data, render.Options{DPI: a.cfg.RenderDPI})
		if err != nil {
			return err
		}
		selected := pagerange.All(len(images))
		if opts.pages != "" {
			selected = pagerange.Parse(opts.pages, len(images))
		}
		if len(selected) == 0 {
			return fmt.Errorf("%w: %q matches none of %d pages", pipeline.ErrNoPages, opts.pages, len(images))
		}
		a.ui.Info("%s: extracting %d of %d pages (%s)", name, len(selected), len(images), pagerange.Format(selected))

		orch.LoadImages(name, images)
		if err := a.follow(orch, len(selected), opts.quiet, func() error {
			return orch.Start(ctx, selected)
		}); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if kind != render.KindDOCX {
		a.retryFailed(ctx, orch, opts.retries, intr.stopped)
	}

	return a.finish(ctx, cl, orch.Snapshot(), opts)
}

// follow runs start with a progress bar subscribed and waits for the run.
func (a *app) follow(orch *pipeline.Orchestrator, total int, quiet bool, start func() error) error {
	prog := newProgress(a.errOut, total, quiet)
	unsubscribe := orch.Subscribe(prog.update)
	defer unsubscribe()

	if err := start(); err != nil {
		return err
	}
	orch.Wait()
	prog.finish()
	return nil
}

// retryFailed re-extracts error pages in rounds with growing delays.
func (a *app) retryFailed(ctx context.Context, orch *pipeline.Orchestrator, rounds int, stopped func() bool) {
	for round := 0; round < rounds; round++ {
		failed := failedSlots(orch.Snapshot())
		if len(failed) == 0 || stopped() {
			return
		}

		delay := retryDelay(round)
		a.ui.Info("retrying %d failed page(s) in %s", len(failed), delay.Round(time.Millisecond))
		if err := ratelimit.Sleep(ctx, delay); err != nil {
			return
		}

		for _, i := range failed {
			if stopped() || ctx.Err() != nil {
				return
			}
			if err := orch.RetryPage(ctx, i); err != nil {
				a.logger.Warn("retry not run", "slot", i, "error", err)
			}
		}
	}
}

func failedSlots(snap pipeline.Snapshot) []int {
	var out []int
	for i, r := range snap.Results {
		if r.Status == models.PageStatusError {
			out = append(out, i)
		}
	}
	return out
}

// finish reports the run, writes the assembled document and optionally uploads it.
func (a *app) finish(ctx context.Context, cl exportUploader, snap pipeline.Snapshot, opts *extractOptions) error {
	for _, n := range snap.Notices {
		a.ui.Warn("%s", n)
	}

	var prompt, completion int
	for _, r := range snap.Results {
		if r.Usage != nil {
			prompt += r.Usage.PromptTokens
			completion += r.Usage.CompletionTokens
		}
		switch {
		case r.Status == models.PageStatusError:
			a.ui.Fail("page %d: %s", r.PageNumber, r.ErrorMessage)
		case a.verbose:
			a.ui.Info("page %d: %s", r.PageNumber, a.ui.pageStatus(r.Status))
		}
	}

	markdown, stats := export.Assemble(snap.Results, export.Options{
		SuccessOnly: opts.successOnly,
		Separators:  opts.separators,
	})
	if stats.Included == 0 {
		return errNothingExtracted
	}

	summary := fmt.Sprintf("%d of %d page(s) extracted", stats.Included, len(snap.Results))
	if stats.Skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", stats.Skipped)
	}
	if prompt+completion > 0 {
		summary += fmt.Sprintf(" (%d input / %d output tokens)", prompt, completion)
	}
	a.ui.Success("%s", summary)

	dest := opts.out
	if dest == "" {
		dest = export.OutputName(snap.FileName)
	}
	if dest == "-" {
		if _, err := fmt.Fprint(a.out, markdown); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(dest, []byte(markdown), 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		a.ui.Success("wrote %s", dest)
	}

	if opts.upload {
		res, err := cl.UploadExport(ctx, snap.FileName, markdown)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		a.ui.Success("uploaded %s (%d bytes)", res.Key, res.Size)
		if res.URL != "" {
			a.ui.Info("%s", res.URL)
		}
	}

	if stats.Failed > 0 {
		return fmt.Errorf("%d page(s) failed", stats.Failed)
	}
	return nil
}

type exportUploader interface {
	UploadExport(ctx context.Context, fileName, markdown string) (models.ExportResult, error)
}

// interrupts turns the first Ctrl-C into a graceful Stop and the second
// into cancellation.
type interrupts struct {
	sigs chan os.Signal
	done chan struct{}
	stop atomic.Bool
}

func watchInterrupts(a *app, orch *pipeline.Orchestrator, cancel context.CancelFunc) *interrupts {
	in := &interrupts{sigs: make(chan os.Signal, 2), done: make(chan struct{})}
	signal.Notify(in.sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-in.sigs:
		case <-in.done:
			return
		}
		in.stop.Store(true)
		a.ui.Warn("stopping; finished pages are kept (interrupt again to abort)")
		orch.Stop()

		select {
		case <-in.sigs:
			cancel()
		case <-in.done:
		}
	}()
	return in
}

func (in *interrupts) stopped() bool { return in.stop.Load() }

func (in *interrupts) close() {
	signal.Stop(in.sigs)
	close(in.done)
}

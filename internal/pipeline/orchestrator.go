package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/pagemark/internal/client"
	"github.com/jmylchreest/pagemark/internal/models"
	"github.com/jmylchreest/pagemark/internal/ratelimit"
)

// Options configures an Orchestrator.
type Options struct {
	Extractor client.Extractor
	Config    ConfigSource
	Docx      DocxConverter

	// OnConfigMissing fires whenever Start or RetryPage is refused for lack
	// of configuration.
	OnConfigMissing func()

	// Clock and Sleep default to time.Now and ratelimit.Sleep.
	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Orchestrator owns one extraction session. All methods are safe for
// concurrent use; listeners are invoked outside the internal lock.
type Orchestrator struct {
	extractor       client.Extractor
	config          ConfigSource
	docx            DocxConverter
	onConfigMissing func()
	now             func() time.Time
	sleep           func(ctx context.Context, d time.Duration) error
	logger          *slog.Logger

	mu     sync.Mutex
	state  Snapshot
	images []string

	// slots changes whenever Results is replaced (Reset, a new document,
	// Start); run changes on every Start and Stop. Writers holding an old
	// value are dropped.
	slots     uint64
	run       uint64
	cancelRun context.CancelFunc
	runDone   chan struct{}
	retries   map[int]*pendingRetry

	version uint64

	listenerMu sync.Mutex
	listeners  map[int]func(Snapshot)
	nextID     int
	emitted    uint64
}

// New creates an Orchestrator in the upload step.
func New(opts Options) *Orchestrator {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = ratelimit.Sleep
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		extractor:       opts.Extractor,
		config:          opts.Config,
		docx:            opts.Docx,
		onConfigMissing: opts.OnConfigMissing,
		now:             now,
		sleep:           sleep,
		logger:          logger.With("component", "pipeline"),
		state:           Snapshot{Step: StepUpload, StreamingIndex: -1},
		retries:         make(map[int]*pendingRetry),
		listeners:       make(map[int]func(Snapshot)),
	}
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Subscribe registers fn to be called after every state change. The
// returned function removes it.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) func() {
	o.listenerMu.Lock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = fn
	o.listenerMu.Unlock()

	return func() {
		o.listenerMu.Lock()
		delete(o.listeners, id)
		o.listenerMu.Unlock()
	}
}

// LoadImages loads a multi-page source and moves to page selection.
func (o *Orchestrator) LoadImages(name string, images []string) {
	o.mutate(func() {
		o.resetLocked()
		o.images = append([]string(nil), images...)
		o.state.FileName = name
		o.state.PageCount = len(images)
		o.state.Step = StepSelect
	})
	o.logger.Info("document loaded", "file", name, "pages", len(images))
}

// LoadImage loads a single image and starts extracting it immediately.
func (o *Orchestrator) LoadImage(ctx context.Context, name, dataURL string) error {
	o.mutate(func() {
		o.resetLocked()
		o.images = []string{dataURL}
		o.state.FileName = name
		o.state.PageCount = 1
	})
	return o.Start(ctx, []int{0})
}

// Start begins extracting the selected pages, in selection order, on a
// background goroutine. Use Wait or Done to observe completion.
func (o *Orchestrator) Start(ctx context.Context, selected []int) error {
	if !o.config.HasAnyConfig(ctx) {
		o.configMissing()
		return ErrConfigMissing
	}

	o.mu.Lock()
	if o.runningLocked() {
		o.mu.Unlock()
		return ErrBusy
	}
	if len(o.images) == 0 {
		o.mu.Unlock()
		return ErrNoDocument
	}
	if len(selected) == 0 {
		o.mu.Unlock()
		return ErrNoPages
	}
	for _, idx := range selected {
		if idx < 0 || idx >= len(o.images) {
			o.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrInvalidPage, idx)
		}
	}

	o.cancelRetriesLocked()
	o.slots++
	results := make([]models.PageResult, len(selected))
	for i, idx := range selected {
		results[i] = models.NewPendingResult(idx)
	}
	o.state.Results = results
	o.state.Step = StepExtract
	o.state.StreamingText = ""
	o.state.StreamingIndex = -1
	o.state.WaitUntil = time.Time{}

	o.run++
	gen := o.run
	runCtx, cancel := context.WithCancel(ctx)
	o.cancelRun = cancel
	done := make(chan struct{})
	o.runDone = done
	images := o.images
	order := append([]int(nil), selected...)
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(snap)

	o.logger.Info("extraction started", "pages", len(order))
	go o.drive(runCtx, gen, images, order, done)
	return nil
}

// Wait blocks until the current run, if any, has finished.
func (o *Orchestrator) Wait() {
	<-o.Done()
}

// Done returns a channel closed when the current run finishes. It is already
// closed when nothing is running.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runDone == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return o.runDone
}

// Stop cancels the current run. Pages that have not finished become
// skipped and completed pages are kept.
func (o *Orchestrator) Stop() {
	o.mutate(func() {
		o.stopLocked()
	})
}

// Reset cancels all work, retries included, and returns to the upload step.
func (o *Orchestrator) Reset() {
	o.mutate(func() {
		o.resetLocked()
	})
}

// RetryPage re-extracts one error or skipped result slot. It runs outside the
// current run's lifetime and blocks until it finishes. A retry whose slots
// are replaced by Start, Reset or a new document is cancelled and its
// result is dropped.
func (o *Orchestrator) RetryPage(ctx context.Context, resultIndex int) error {
	if !o.config.HasAnyConfig(ctx) {
		o.configMissing()
		return ErrConfigMissing
	}

	o.mu.Lock()
	if resultIndex < 0 || resultIndex >= len(o.state.Results) {
		o.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidPage, resultIndex)
	}
	if _, busy := o.retries[resultIndex]; busy {
		o.mu.Unlock()
		return ErrBusy
	}
	slot := o.state.Results[resultIndex]
	if !slot.Status.IsTerminal() || slot.ImageIndex >= len(o.images) {
		o.mu.Unlock()
		return ErrBusy
	}
	if slot.Status == models.PageStatusSuccess {
		o.mu.Unlock()
		return fmt.Errorf("%w: page %d", ErrNotRetryable, slot.PageNumber)
	}
	slots := o.slots
	retryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	mine := &pendingRetry{cancel: cancel}
	o.retries[resultIndex] = mine
	slot.Status = models.PageStatusExtracting
	slot.Markdown = ""
	slot.ErrorMessage = ""
	slot.Usage = nil
	o.state.Results[resultIndex] = slot
	image := o.images[slot.ImageIndex]
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(snap)

	logger := o.logger.With("page", slot.PageNumber)
	logger.Info("retrying page")

	var res models.PageResult
	var err error
	cfg, cfgErr := o.config.ResolveModel(retryCtx)
	if cfgErr != nil {
		res = failed(slot.ImageIndex, MsgConfigMissing)
	} else {
		res, err = o.extractor.Extract(retryCtx, client.PageRequest{
			ImageDataURL: image,
			ImageIndex:   slot.ImageIndex,
			Config:       cfg,
		}, nil)
		if err != nil {
			if retryCtx.Err() == nil {
				res = failed(slot.ImageIndex, fmt.Sprintf("page %d extraction failed: %v", slot.PageNumber, err))
				err = nil
			} else {
				res = failed(slot.ImageIndex, MsgRetryInterrupted)
			}
		}
	}

	o.mu.Lock()
	if o.retries[resultIndex] == mine {
		delete(o.retries, resultIndex)
	}
	if o.slots != slots {
		o.mu.Unlock()
		logger.Debug("dropping retry result for replaced results")
		if err == nil {
			err = context.Canceled
		}
		return err
	}
	o.state.Results[resultIndex] = res
	snap = o.snapshotLocked()
	o.mu.Unlock()
	o.emit(snap)

	logger.Info("retry finished", "status", res.Status)
	return err
}

// ConvertDocx converts a DOCX document as a single result. It blocks until
// the conversion finishes; Stop marks the page skipped.
func (o *Orchestrator) ConvertDocx(ctx context.Context, name string, data []byte) error {
	o.mu.Lock()
	o.resetLocked()
	o.state.FileName = name
	o.state.PageCount = 1
	o.state.IsDocx = true
	o.state.Results = []models.PageResult{models.NewPendingResult(0)}
	o.state.Results[0].Status = models.PageStatusExtracting
	o.state.Step = StepExtract
	o.run++
	gen := o.run
	convCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelRun = cancel
	done := make(chan struct{})
	o.runDone = done
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(snap)
	defer close(done)

	o.logger.Info("converting docx", "file", name, "bytes", len(data))
	res, err := o.docx.ConvertDocx(convCtx, name, data)
	if err != nil && convCtx.Err() != nil {
		o.abandon(gen)
		return convCtx.Err()
	}

	o.commit(gen, func() {
		page := &o.state.Results[0]
		if err != nil {
			page.Status = models.PageStatusError
			page.ErrorMessage = "DOCX conversion failed: " + err.Error()
		} else {
			page.Status = models.PageStatusSuccess
			page.Markdown = res.Markdown
			o.state.Notices = append([]string(nil), res.Messages...)
		}
		o.state.Step = StepDone
		o.cancelRun = nil
	})
	if err != nil {
		o.logger.Warn("docx conversion failed", "file", name, "error", err)
	}
	return nil
}

// drive processes pages sequentially for run gen.
func (o *Orchestrator) drive(ctx context.Context, gen uint64, images []string, order []int, done chan struct{}) {
	defer close(done)

	limiter := ratelimit.New(nil, ratelimit.WithClock(o.now))

	for i, idx := range order {
		if ctx.Err() != nil {
			o.abandon(gen)
			return
		}

		limiter.SetConfig(o.config.ResolveRateLimit(ctx))
		if wait := limiter.WaitTime(); wait > 0 {
			until := o.now().Add(wait)
			o.commit(gen, func() { o.state.WaitUntil = until })
			o.logger.Info("waiting for rate limit", "page", idx+1, "wait", wait)
			err := o.sleep(ctx, wait)
			o.commit(gen, func() { o.state.WaitUntil = time.Time{} })
			if err != nil {
				o.abandon(gen)
				return
			}
		}

		if !o.commit(gen, func() {
			o.state.Results[i].Status = models.PageStatusExtracting
			o.state.StreamingText = ""
			o.state.StreamingIndex = i
		}) {
			return
		}

		cfg, err := o.config.ResolveModel(ctx)
		if err != nil {
			o.logger.Warn("model configuration disappeared", "page", idx+1, "error", err)
			o.commit(gen, func() {
				o.state.Results[i] = failed(idx, MsgConfigMissing)
				o.state.StreamingText = ""
				o.state.StreamingIndex = -1
			})
			continue
		}

		res, err := o.extractor.Extract(ctx, client.PageRequest{
			ImageDataURL: images[idx],
			ImageIndex:   idx,
			Config:       cfg,
		}, func(text string) {
			o.commit(gen, func() {
				if o.state.StreamingIndex == i {
					o.state.StreamingText = text
				}
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				o.abandon(gen)
				return
			}
			res = failed(idx, fmt.Sprintf("page %d extraction failed: %v", idx+1, err))
		}

		limiter.RecordRequest(res.Usage)
		o.commit(gen, func() {
			o.state.Results[i] = res
			o.state.StreamingText = ""
			o.state.StreamingIndex = -1
		})
	}

	o.commit(gen, func() {
		o.state.StreamingText = ""
		o.state.StreamingIndex = -1
		o.state.WaitUntil = time.Time{}
		o.state.Step = StepDone
		o.cancelRun = nil
	})
	o.logger.Info("extraction finished", "pages", len(order))
}

// commit applies fn if run gen is still current and notifies listeners.
func (o *Orchestrator) commit(gen uint64, fn func()) bool {
	o.mu.Lock()
	if o.run != gen {
		o.mu.Unlock()
		return false
	}
	fn()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(snap)
	return true
}

// abandon reconciles a run whose context ended without Stop being called.
func (o *Orchestrator) abandon(gen uint64) {
	o.mu.Lock()
	if o.run != gen {
		o.mu.Unlock()
		return
	}
	o.stopLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(snap)
}

func (o *Orchestrator) mutate(fn func()) {
	o.mu.Lock()
	fn()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.emit(snap)
}

func (o *Orchestrator) stopLocked() {
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	o.run++
	if o.state.Step != StepExtract {
		return
	}
	skipped := 0
	for i := range o.state.Results {
		if _, retrying := o.retries[i]; retrying {
			continue
		}
		switch o.state.Results[i].Status {
		case models.PageStatusPending, models.PageStatusExtracting:
			o.state.Results[i].Status = models.PageStatusSkipped
			skipped++
		}
	}
	o.state.StreamingText = ""
	o.state.StreamingIndex = -1
	o.state.WaitUntil = time.Time{}
	o.state.Step = StepDone
	o.logger.Info("extraction stopped", "skipped", skipped)
}

func (o *Orchestrator) resetLocked() {
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
	}
	o.cancelRetriesLocked()
	o.run++
	o.slots++
	o.images = nil
	o.state = Snapshot{Step: StepUpload, StreamingIndex: -1}
}

func (o *Orchestrator) cancelRetriesLocked() {
	for idx, r := range o.retries {
		r.cancel()
		delete(o.retries, idx)
	}
}

// pendingRetry is owned by one RetryPage call; identity tells a finishing
// retry whether its map entry was replaced.
type pendingRetry struct {
	cancel context.CancelFunc
}

func (o *Orchestrator) runningLocked() bool {
	if o.runDone == nil {
		return false
	}
	select {
	case <-o.runDone:
		return false
	default:
		return o.cancelRun != nil
	}
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	o.version++
	snap := o.state.clone()
	snap.version = o.version
	return snap
}

// emit delivers snap to listeners, dropping snapshots older than one
// already delivered. Listeners may call back into the orchestrator.
func (o *Orchestrator) emit(snap Snapshot) {
	o.listenerMu.Lock()
	if snap.version <= o.emitted {
		o.listenerMu.Unlock()
		return
	}
	o.emitted = snap.version
	fns := make([]func(Snapshot), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.listenerMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (o *Orchestrator) configMissing() {
	o.logger.Warn("extraction refused: no model configuration")
	if o.onConfigMissing != nil {
		o.onConfigMissing()
	}
}

func failed(imageIndex int, msg string) models.PageResult {
	res := models.NewPendingResult(imageIndex)
	res.Status = models.PageStatusError
	res.ErrorMessage = msg
	return res
}

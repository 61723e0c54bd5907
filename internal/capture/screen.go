package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/signet-run/signet/pkg/textutil"
)

// MaxOCRTextLen is the maximum number of characters of OCR text a
// ScreenCapture retains.
const MaxOCRTextLen = 10_000

// dedupMinConsecutive is the run length (including the tick being checked)
// at which a near-duplicate tick starts being skipped: the first tick of a
// run is always kept, every tick after it is a candidate for suppression.
const dedupMinConsecutive = 2

// dedupJaccardThreshold is the similarity above which a tick is considered
// a near-duplicate of the previous one once dedupMinConsecutive is met.
const dedupJaccardThreshold = 0.8

// ScreenBackend resolves the focused window and its OCR text. Implementations
// wrap platform-specific tools (window inspection + OCR); a fake
// implementation drives adapter tests.
type ScreenBackend interface {
	// FocusedWindow returns the frontmost app name, window title, and a
	// platform bundle identifier.
	FocusedWindow(ctx context.Context) (app, window, bundleID string, err error)

	// OCRText returns the recognized text of the current screen contents.
	OCRText(ctx context.Context) (string, error)
}

// ScreenConfig configures the screen adapter's cadence and exclusions.
type ScreenConfig struct {
	IntervalSeconds int
	ExcludeApps     []string
	ExcludeWindows  []string
}

// ScreenAdapter periodically samples the focused window and its OCR text.
type ScreenAdapter struct {
	cfg     ScreenConfig
	backend ScreenBackend
	logger  *slog.Logger
	store   *Store[ScreenCapture]

	mu       sync.Mutex
	lastApp  string
	lastWin  string
	lastText string
	runCount int

	// limiter caps ticks to one per interval even if the ticker fires a
	// burst after the process was suspended (e.g. laptop sleep/wake).
	limiter *rate.Limiter

	cancel context.CancelFunc
	done   chan struct{}

	newID func() string
	now   func() time.Time
}

// NewScreenAdapter creates a screen adapter backed by backend.
func NewScreenAdapter(cfg ScreenConfig, backend ScreenBackend, logger *slog.Logger) *ScreenAdapter {
	return &ScreenAdapter{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
		store:   NewStore[ScreenCapture](DefaultFIFOCap),
		newID:   newEventID,
		now:     time.Now,
	}
}

// Name implements Adapter.
func (a *ScreenAdapter) Name() string { return "screen" }

// Count implements Adapter.
func (a *ScreenAdapter) Count() int { return a.store.Count() }

// Trim implements Adapter.
func (a *ScreenAdapter) Trim(cutoff time.Time) int { return a.store.Trim(cutoff) }

// Since returns captures at or after since.
func (a *ScreenAdapter) Since(since time.Time) []ScreenCapture { return a.store.Since(since) }

// Start launches the periodic sampling loop.
func (a *ScreenAdapter) Start(ctx context.Context) error {
	interval := time.Duration(a.cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	a.limiter = rate.NewLimiter(rate.Every(interval), 1)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go a.loop(runCtx, interval)

	return nil
}

// Stop halts the sampling loop and waits for it to exit.
func (a *ScreenAdapter) Stop(_ context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.done != nil {
		<-a.done
	}

	return nil
}

func (a *ScreenAdapter) loop(ctx context.Context, interval time.Duration) {
	defer close(a.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// tick runs one sampling cycle. It is unexported; in-package tests call it
// directly to drive sampling rather than waiting on the ticker.
func (a *ScreenAdapter) tick(ctx context.Context) {
	if a.limiter != nil && !a.limiter.Allow() {
		return
	}

	app, window, bundleID, err := a.backend.FocusedWindow(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "capture.screen resolve focused window failed", "error", err)

		return
	}

	if matchesAny(app, a.cfg.ExcludeApps) || matchesAny(window, a.cfg.ExcludeWindows) {
		return
	}

	text, err := a.backend.OCRText(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "capture.screen OCR failed", "error", err)

		return
	}

	if len(text) > MaxOCRTextLen {
		text = text[:MaxOCRTextLen]
	}

	if a.isDuplicate(app, window, text) {
		return
	}

	a.store.Append(ScreenCapture{
		EventMeta:     EventMeta{ID: a.newID(), Timestamp: a.now()},
		FocusedApp:    app,
		FocusedWindow: window,
		BundleID:      bundleID,
		OCRText:       text,
	})
}

// isDuplicate applies the dedup rule and updates the trailing state
// regardless of outcome, so the next tick compares against this one.
func (a *ScreenAdapter) isDuplicate(app, window, text string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	sameContext := app == a.lastApp && window == a.lastWin
	if sameContext {
		a.runCount++
	} else {
		a.runCount = 1
	}

	dup := sameContext && a.runCount >= dedupMinConsecutive && textutil.Jaccard(text, a.lastText) > dedupJaccardThreshold

	a.lastApp = app
	a.lastWin = window
	a.lastText = text

	return dup
}

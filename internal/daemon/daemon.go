// Package daemon hosts signet's long-lived process: the capture manager,
// refiner scheduler, memory store, distillation loop, and the versioned
// HTTP API that exposes them to external collaborators, per spec.md
// §4.5.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/signet-run/signet/internal/capture"
	"github.com/signet-run/signet/internal/distill"
	"github.com/signet-run/signet/internal/memory"
	"github.com/signet-run/signet/internal/refiner"
	"github.com/signet-run/signet/pkg/observability"
)

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultDistillCheckInterval = time.Hour
	defaultDistillRunInterval   = 24 * time.Hour
)

// Scheduler is the subset of *refiner.Scheduler the daemon drives.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	LastRefinerRun() map[string]time.Time
	MemoriesExtractedToday() int
}

// CaptureManager is the subset of *capture.CaptureManager the daemon
// drives. Left nil-able in Config since a test or a constrained platform
// may run with every adapter disabled.
type CaptureManager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	GetCounts() map[string]int
	GetRecentCaptures(since time.Time) capture.CaptureBundle
}

// Distiller is the subset of *distill.Distiller the daemon's background
// loop drives.
type Distiller interface {
	ShouldRun(ctx context.Context, now time.Time, interval time.Duration) (bool, error)
	Run(ctx context.Context, now time.Time) error
}

// Config wires a Daemon's dependencies. Captures, Scheduler, and Distiller
// may be nil (disabled); Store must not be.
type Config struct {
	Addr            string
	Store           *memory.Store
	Captures        CaptureManager
	Scheduler       Scheduler
	Distiller       Distiller
	Logger          *slog.Logger
	Observability   observability.Providers
	DistillInterval time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// Daemon owns the full set of subsystems a running signetd process hosts
// and their start/stop order.
type Daemon struct {
	store     *memory.Store
	captures  CaptureManager
	scheduler Scheduler
	distiller Distiller
	logger    *slog.Logger
	logRing   *LogRing
	obs       observability.Providers

	distillInterval time.Duration

	httpServer *http.Server

	startedAt time.Time

	distillCancel context.CancelFunc
	distillDone   chan struct{}

	mu      sync.Mutex
	started bool
}

// New constructs a Daemon from cfg, applying documented defaults for any
// zero-valued timeout/interval field.
func New(cfg Config, logRing *LogRing) *Daemon {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if cfg.DistillInterval <= 0 {
		cfg.DistillInterval = defaultDistillRunInterval
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if logRing == nil {
		logRing = NewLogRing()
	}

	d := &Daemon{
		store:           cfg.Store,
		captures:        cfg.Captures,
		scheduler:       cfg.Scheduler,
		distiller:       cfg.Distiller,
		logger:          cfg.Logger,
		logRing:         logRing,
		obs:             cfg.Observability,
		distillInterval: cfg.DistillInterval,
	}

	d.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      newRouter(d),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	return d
}

// Start brings up every subsystem in dependency order — captures first
// (nothing depends on them but the scheduler reads their output), then
// the refiner scheduler, then the distillation loop, then the HTTP
// listener last so health checks only succeed once everything behind
// them is live. Capture adapter start failures are logged and treated
// as non-fatal per spec.md's failure semantics; nothing else is.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return errors.New("daemon: already started")
	}

	d.startedAt = time.Now()

	if d.captures != nil {
		if err := d.captures.Start(ctx); err != nil {
			d.logger.WarnContext(ctx, "capture manager start failed", "error", err)
		}
	}

	if d.scheduler != nil {
		if err := d.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("daemon: start refiner scheduler: %w", err)
		}
	}

	if d.distiller != nil {
		d.startDistillLoop(ctx)
	}

	listener, err := newLoopbackListener(d.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("daemon: bind http listener: %w", err)
	}

	go func() {
		if serveErr := d.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			d.logger.Error("http server exited", "error", serveErr)
		}
	}()

	d.started = true

	return nil
}

// Stop tears down every subsystem in reverse dependency order: HTTP
// listener first (stop accepting new work), then distillation, then the
// refiner scheduler, then captures, then the memory store last since
// everything above may still be mid-write against it when Stop is
// called.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	var errs []error

	if err := d.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if d.distillCancel != nil {
		d.distillCancel()
		<-d.distillDone
	}

	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
	}

	if d.captures != nil {
		if err := d.captures.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("captures stop: %w", err))
		}
	}

	if err := d.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	d.started = false

	return errors.Join(errs...)
}

// startDistillLoop runs a ticker that checks ShouldRun every
// defaultDistillCheckInterval and calls Run once the configured interval
// has elapsed — decoupling the cheap gating check's cadence from the
// (usually 24h) distillation interval itself.
func (d *Daemon) startDistillLoop(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	d.distillCancel = cancel
	d.distillDone = make(chan struct{})

	go func() {
		defer close(d.distillDone)

		ticker := time.NewTicker(defaultDistillCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.runDistillIfDue(ctx)
			}
		}
	}()
}

func (d *Daemon) runDistillIfDue(ctx context.Context) {
	now := time.Now()

	should, err := d.distiller.ShouldRun(ctx, now, d.distillInterval)
	if err != nil {
		d.logger.WarnContext(ctx, "distillation should-run check failed", "error", err)
		return
	}

	if !should {
		return
	}

	if err := d.distiller.Run(ctx, now); err != nil {
		d.logger.WarnContext(ctx, "distillation run failed", "error", err)
	}
}

// Uptime returns how long the daemon has been running since the last
// successful Start.
func (d *Daemon) Uptime() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.startedAt.IsZero() {
		return 0
	}

	return time.Since(d.startedAt)
}

var (
	_ Scheduler      = (*refiner.Scheduler)(nil)
	_ CaptureManager = (*capture.CaptureManager)(nil)
	_ Distiller      = (*distill.Distiller)(nil)
)

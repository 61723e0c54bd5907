package capture

import (
	"context"
	"log/slog"
	"time"
)

// cleanupInterval is how often the manager trims every adapter's store down
// to its configured retention window.
const cleanupInterval = time.Hour

// RetentionConfig gives the manager each adapter's retention window, in
// days, for the hourly cleanup pass.
type RetentionConfig struct {
	ScreenDays   int
	FilesDays    int
	TerminalDays int
	CommsDays    int
	VoiceDays    int
}

// CaptureManager owns the set of enabled adapters, starts and stops them
// together, and assembles capture bundles on demand for the refiner
// scheduler.
type CaptureManager struct {
	retention RetentionConfig
	logger    *slog.Logger

	screen   *ScreenAdapter
	files    *FilesAdapter
	terminal *TerminalAdapter
	comms    *CommsAdapter
	voice    *VoiceAdapter

	adapters []Adapter

	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// NewCaptureManager builds a manager from whichever adapters are enabled.
// A nil adapter argument means that capture kind is disabled.
func NewCaptureManager(retention RetentionConfig, logger *slog.Logger, screen *ScreenAdapter, files *FilesAdapter, terminal *TerminalAdapter, comms *CommsAdapter, voice *VoiceAdapter) *CaptureManager {
	m := &CaptureManager{
		retention: retention,
		logger:    logger,
		screen:    screen,
		files:     files,
		terminal:  terminal,
		comms:     comms,
		voice:     voice,
		now:       time.Now,
	}

	for _, a := range []Adapter{screen, files, terminal, comms, voice} {
		if a == nil || isNilAdapter(a) {
			continue
		}

		m.adapters = append(m.adapters, a)
	}

	return m
}

// isNilAdapter guards against a typed nil pointer satisfying the Adapter
// interface non-nilly (e.g. (*ScreenAdapter)(nil)).
func isNilAdapter(a Adapter) bool {
	switch v := a.(type) {
	case *ScreenAdapter:
		return v == nil
	case *FilesAdapter:
		return v == nil
	case *TerminalAdapter:
		return v == nil
	case *CommsAdapter:
		return v == nil
	case *VoiceAdapter:
		return v == nil
	default:
		return false
	}
}

// Start launches every enabled adapter and the hourly cleanup loop.
func (m *CaptureManager) Start(ctx context.Context) error {
	for _, a := range m.adapters {
		if err := a.Start(ctx); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.cleanupLoop(runCtx)

	return nil
}

// Stop halts the cleanup loop, then every adapter in reverse start order.
func (m *CaptureManager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	if m.done != nil {
		<-m.done
	}

	var firstErr error

	for i := len(m.adapters) - 1; i >= 0; i-- {
		if err := m.adapters[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (m *CaptureManager) cleanupLoop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(ctx)
		}
	}
}

// cleanup trims each adapter's store to its configured retention window and
// logs the surviving counts.
func (m *CaptureManager) cleanup(ctx context.Context) {
	now := m.now()

	retentions := map[Adapter]int{}
	if m.screen != nil {
		retentions[m.screen] = m.retention.ScreenDays
	}

	if m.files != nil {
		retentions[m.files] = m.retention.FilesDays
	}

	if m.terminal != nil {
		retentions[m.terminal] = m.retention.TerminalDays
	}

	if m.comms != nil {
		retentions[m.comms] = m.retention.CommsDays
	}

	if m.voice != nil {
		retentions[m.voice] = m.retention.VoiceDays
	}

	for _, a := range m.adapters {
		days := retentions[a]
		if days <= 0 {
			continue
		}

		cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
		removed := a.Trim(cutoff)

		m.logger.InfoContext(ctx, "capture.manager trimmed adapter store",
			"adapter", a.Name(), "removed", removed, "remaining", a.Count())
	}
}

// GetCounts returns the current event count of each enabled adapter, keyed
// by adapter name.
func (m *CaptureManager) GetCounts() map[string]int {
	counts := make(map[string]int, len(m.adapters))
	for _, a := range m.adapters {
		counts[a.Name()] = a.Count()
	}

	return counts
}

// GetRecentCaptures assembles a bundle of every enabled adapter's events at
// or after since.
func (m *CaptureManager) GetRecentCaptures(since time.Time) CaptureBundle {
	bundle := CaptureBundle{Since: since, Until: m.now()}

	if m.screen != nil {
		bundle.Screen = m.screen.Since(since)
	}

	if m.files != nil {
		bundle.Files = m.files.Since(since)
	}

	if m.terminal != nil {
		bundle.Terminal = m.terminal.Since(since)
	}

	if m.comms != nil {
		bundle.Comms = m.comms.Since(since)
	}

	if m.voice != nil {
		bundle.Voice = m.voice.Since(since)
	}

	return bundle
}

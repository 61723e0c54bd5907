package refiner

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/signet-run/signet/internal/capture"
)

// defaultCycleMinutes is used when Scheduler is constructed with a
// non-positive interval.
const defaultCycleMinutes = 20

// initialDelay is how long the scheduler waits after Start before its
// first cycle, giving the capture adapters time to accumulate events.
const initialDelay = 60 * time.Second

// projectSwitchSeparators splits a window title on an em, en, or plain
// hyphen; the last segment is taken as the current project label (for
// "main.go — signet — Visual Studio Code" that is "Visual Studio Code").
var projectSwitchSeparators = regexp.MustCompile(`[—–-]`)

// projectsPathSegment matches the path segment immediately following a
// "projects" directory component, e.g. "/home/x/projects/signet/..." →
// "signet".
var projectsPathSegment = regexp.MustCompile(`/projects/([^/]+)`)

// BundleSource supplies the capture bundle a scheduler cycle refines
// over. Satisfied by *capture.CaptureManager.
type BundleSource interface {
	GetRecentCaptures(since time.Time) capture.CaptureBundle
}

// Scheduler runs every registered refiner on a fixed cycle, skipping
// refiners still in cooldown unless a detected project switch forces
// the context and project refiners to run anyway.
type Scheduler struct {
	refiners   []Refiner
	source     BundleSource
	llm        *LLMClient
	rememberer Rememberer
	logger     *slog.Logger

	intervalMinutes int

	cancel context.CancelFunc
	done   chan struct{}

	mu                     sync.Mutex
	lastRun                map[string]time.Time
	lastProject            string
	memoriesExtractedToday int
	dayBoundary            time.Time

	now func() time.Time
}

// NewScheduler creates a scheduler running refiners in the given order
// every intervalMinutes, against source's bundles, persisting through
// rememberer. Force-run eligibility on a project switch is decided by
// refiner name (context-extractor, project-extractor), not by order.
func NewScheduler(refiners []Refiner, source BundleSource, llm *LLMClient, rememberer Rememberer, logger *slog.Logger, intervalMinutes int) *Scheduler {
	if intervalMinutes <= 0 {
		intervalMinutes = defaultCycleMinutes
	}

	return &Scheduler{
		refiners:        refiners,
		source:          source,
		llm:             llm,
		rememberer:      rememberer,
		logger:          logger,
		intervalMinutes: intervalMinutes,
		lastRun:         make(map[string]time.Time),
		now:             time.Now,
	}
}

// Start launches the cycle loop: an initial 60s delay, then one cycle
// per intervalMinutes until Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx)

	return nil
}

// Stop halts the cycle loop and waits for it to exit.
func (s *Scheduler) Stop(_ context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	if s.done != nil {
		<-s.done
	}

	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.runCycle(ctx)

	ticker := time.NewTicker(time.Duration(s.intervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle builds one bundle and runs every eligible refiner against it.
func (s *Scheduler) runCycle(ctx context.Context) {
	s.resetDailyCounterIfNeeded()

	window := time.Duration(2*s.intervalMinutes) * time.Minute
	bundle := s.source.GetRecentCaptures(s.now().Add(-window))

	forceProjectRefiners := s.detectProjectSwitch(bundle)

	for _, r := range s.refiners {
		s.runRefiner(ctx, r, bundle, forceProjectRefiners)
	}
}

func (s *Scheduler) runRefiner(ctx context.Context, r Refiner, bundle capture.CaptureBundle, forceProjectRefiners bool) {
	name := r.Name()

	s.mu.Lock()
	lastRun := s.lastRun[name]
	s.mu.Unlock()

	forced := forceProjectRefiners && (name == "context-extractor" || name == "project-extractor")

	if !forced && !shouldRun(r.CooldownMinutes(), lastRun, s.now()) {
		return
	}

	if !r.HasEnoughData(bundle) {
		return
	}

	raw, err := s.llm.Generate(ctx, r.SystemPrompt(), r.FormatContext(bundle))
	if err != nil {
		s.logger.WarnContext(ctx, "refiner generate failed", "refiner", name, "error", err)

		return
	}

	memories := r.ParseResponse(raw)

	for _, mem := range memories {
		if _, _, err := s.rememberer.Remember(ctx, mem); err != nil {
			s.logger.WarnContext(ctx, "refiner persistence failed", "refiner", name, "error", err)

			continue
		}

		s.mu.Lock()
		s.memoriesExtractedToday++
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.lastRun[name] = s.now()
	s.mu.Unlock()
}

// detectProjectSwitch derives the current project from the bundle's
// freshest screen window or file activity and reports whether it
// differs from the last cycle's project.
func (s *Scheduler) detectProjectSwitch(bundle capture.CaptureBundle) bool {
	current := currentProject(bundle)
	if current == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switched := s.lastProject != "" && current != s.lastProject
	s.lastProject = current

	return switched
}

// currentProject derives a project label from the latest screen window
// title, falling back to the latest file activity's "projects/<name>"
// path segment.
func currentProject(bundle capture.CaptureBundle) string {
	if len(bundle.Screen) > 0 {
		title := bundle.Screen[len(bundle.Screen)-1].FocusedWindow

		parts := projectSwitchSeparators.Split(title, -1)
		if len(parts) > 0 {
			if last := strings.TrimSpace(parts[len(parts)-1]); last != "" {
				return last
			}
		}
	}

	if len(bundle.Files) > 0 {
		path := bundle.Files[len(bundle.Files)-1].FilePath
		if m := projectsPathSegment.FindStringSubmatch(path); m != nil {
			return m[1]
		}
	}

	return ""
}

func (s *Scheduler) resetDailyCounterIfNeeded() {
	now := s.now().Local()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dayBoundary.IsZero() {
		s.dayBoundary = today

		return
	}

	if today.After(s.dayBoundary) {
		s.dayBoundary = today
		s.memoriesExtractedToday = 0
	}
}

// LastRefinerRun returns the last successful run time per refiner name.
func (s *Scheduler) LastRefinerRun() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Time, len(s.lastRun))
	for k, v := range s.lastRun {
		out[k] = v
	}

	return out
}

// MemoriesExtractedToday returns the count of memories persisted since
// local midnight.
func (s *Scheduler) MemoriesExtractedToday() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.memoriesExtractedToday
}

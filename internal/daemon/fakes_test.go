package daemon

import (
	"context"
	"time"

	"github.com/signet-run/signet/internal/capture"
)

// fakeScheduler is a no-op Scheduler for exercising Daemon lifecycle
// without a real refiner pipeline.
type fakeScheduler struct {
	startCalled bool
	stopCalled  bool
	startErr    error
	stopErr     error
	calls       *[]string
}

// record appends name to calls when the test shares a call log.
func record(calls *[]string, name string) {
	if calls != nil {
		*calls = append(*calls, name)
	}
}

func (f *fakeScheduler) Start(context.Context) error {
	f.startCalled = true
	record(f.calls, "scheduler.start")
	return f.startErr
}

func (f *fakeScheduler) Stop(context.Context) error {
	f.stopCalled = true
	record(f.calls, "scheduler.stop")
	return f.stopErr
}

func (f *fakeScheduler) LastRefinerRun() map[string]time.Time { return nil }
func (f *fakeScheduler) MemoriesExtractedToday() int          { return 0 }

// fakeCaptureManager is a no-op CaptureManager.
type fakeCaptureManager struct {
	startCalled bool
	stopCalled  bool
	startErr    error
	calls       *[]string
}

func (f *fakeCaptureManager) Start(context.Context) error {
	f.startCalled = true
	record(f.calls, "captures.start")
	return f.startErr
}

func (f *fakeCaptureManager) Stop(context.Context) error {
	f.stopCalled = true
	record(f.calls, "captures.stop")
	return nil
}

func (f *fakeCaptureManager) GetCounts() map[string]int { return map[string]int{} }

func (f *fakeCaptureManager) GetRecentCaptures(time.Time) capture.CaptureBundle {
	return capture.CaptureBundle{}
}

// fakeDistiller is a Distiller whose ShouldRun/Run behavior is controlled
// by the test.
type fakeDistiller struct {
	shouldRun bool
	runCalled bool
	runErr    error
}

func (f *fakeDistiller) ShouldRun(context.Context, time.Time, time.Duration) (bool, error) {
	return f.shouldRun, nil
}

func (f *fakeDistiller) Run(context.Context, time.Time) error {
	f.runCalled = true
	return f.runErr
}

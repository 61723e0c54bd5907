package capture

import (
	"context"
	"time"
)

// Adapter is the polymorphic contract every capture adapter satisfies.
// Implementations are single-producer: only the adapter's own goroutine
// appends to its Store, though reads may come from any goroutine.
type Adapter interface {
	// Name returns the adapter's identifier, e.g. "screen" or "terminal".
	Name() string

	// Start begins the adapter's background capture loop. It returns once
	// the loop has been launched, not once it has stopped.
	Start(ctx context.Context) error

	// Stop halts the capture loop and releases any held resources (timers,
	// temp directories, file handles).
	Stop(ctx context.Context) error

	// Count returns the number of events currently held.
	Count() int

	// Trim drops events older than cutoff and returns the number removed.
	Trim(cutoff time.Time) int
}

// CaptureBundle is a point-in-time snapshot of every adapter's events within
// a window, assembled on demand for the refiner scheduler.
type CaptureBundle struct {
	Screen   []ScreenCapture
	Voice    []VoiceSegment
	Files    []FileActivity
	Terminal []TerminalCapture
	Comms    []CommCapture
	Since    time.Time
	Until    time.Time
}

// Total returns the combined count of every capture kind in the bundle.
func (b CaptureBundle) Total() int {
	return len(b.Screen) + len(b.Voice) + len(b.Files) + len(b.Terminal) + len(b.Comms)
}

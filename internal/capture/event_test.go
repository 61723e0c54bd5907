package capture_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/signet-run/signet/internal/capture"
)

func TestEventMeta_SatisfiesEventForEveryVariant(t *testing.T) {
	t.Parallel()

	ts := time.Now()
	meta := capture.EventMeta{ID: "x", Timestamp: ts}

	var events = []capture.Event{
		capture.ScreenCapture{EventMeta: meta},
		capture.FileActivity{EventMeta: meta},
		capture.TerminalCapture{EventMeta: meta},
		capture.CommCapture{EventMeta: meta},
		capture.VoiceSegment{EventMeta: meta},
	}

	for _, e := range events {
		assert.Equal(t, "x", e.Meta().ID)
		assert.Equal(t, ts, e.Meta().Timestamp)
	}
}

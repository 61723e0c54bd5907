package refiner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signet-run/signet/internal/capture"
)

func TestPatternRefiner_HasEnoughData_RequiresTotalOfThirty(t *testing.T) {
	t.Parallel()

	r := NewPatternRefiner()

	assert.False(t, r.HasEnoughData(capture.CaptureBundle{Screen: make([]capture.ScreenCapture, 29)}))
	assert.True(t, r.HasEnoughData(capture.CaptureBundle{
		Screen:   make([]capture.ScreenCapture, 10),
		Terminal: make([]capture.TerminalCapture, 10),
		Files:    make([]capture.FileActivity, 10),
	}))
}

func TestPatternRefiner_ParseResponse_DropsWeakStrength(t *testing.T) {
	t.Parallel()

	r := NewPatternRefiner()

	raw := `[{"pattern": "always runs tests before commit", "strength": 0.3, "confidence": 0.9}]`
	assert.Empty(t, r.ParseResponse(raw))
}

func TestPatternRefiner_ParseResponse_KeepsModerateAndStrong(t *testing.T) {
	t.Parallel()

	r := NewPatternRefiner()

	raw := `[
		{"pattern": "a", "strength": 0.65, "confidence": 0.9},
		{"pattern": "b", "strength": 0.9, "confidence": 0.9}
	]`

	mems := r.ParseResponse(raw)
	assert.Len(t, mems, 2)
	assert.InDelta(t, 0.6, mems[0].Importance, 0.001)
	assert.InDelta(t, 0.85, mems[1].Importance, 0.001)
}

func TestPatternRefiner_ParseResponse_DropsBelowConfidenceFloor(t *testing.T) {
	t.Parallel()

	r := NewPatternRefiner()

	raw := `[{"pattern": "a", "strength": 0.9, "confidence": 0.2}]`
	assert.Empty(t, r.ParseResponse(raw))
}

package refiner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/signet-run/signet/internal/capture"
)

func TestProjectRefiner_HasEnoughData(t *testing.T) {
	t.Parallel()

	r := NewProjectRefiner()

	assert.True(t, r.HasEnoughData(capture.CaptureBundle{Comms: make([]capture.CommCapture, 1)}))
	assert.False(t, r.HasEnoughData(capture.CaptureBundle{}))
}

func TestProjectRefiner_ParseResponse_FixedImportance(t *testing.T) {
	t.Parallel()

	r := NewProjectRefiner()

	mems := r.ParseResponse(`[{"fact": "uses postgres", "confidence": 0.9}]`)
	assert.Len(t, mems, 1)
	assert.Equal(t, MemoryTypeFact, mems[0].Type)
	assert.InDelta(t, 0.7, mems[0].Importance, 0.001)
}

func TestDecisionRefiner_HasEnoughData(t *testing.T) {
	t.Parallel()

	r := NewDecisionRefiner()

	assert.True(t, r.HasEnoughData(capture.CaptureBundle{Voice: make([]capture.VoiceSegment, 1)}))
	assert.False(t, r.HasEnoughData(capture.CaptureBundle{}))
}

func TestDecisionRefiner_ParseResponse_BelowFloorDropped(t *testing.T) {
	t.Parallel()

	r := NewDecisionRefiner()

	assert.Empty(t, r.ParseResponse(`[{"decision": "chose postgres over mysql", "confidence": 0.1}]`))
}

func TestWorkflowRefiner_HasEnoughData(t *testing.T) {
	t.Parallel()

	r := NewWorkflowRefiner()

	assert.True(t, r.HasEnoughData(capture.CaptureBundle{Terminal: make([]capture.TerminalCapture, 5)}))
	assert.False(t, r.HasEnoughData(capture.CaptureBundle{Terminal: make([]capture.TerminalCapture, 1)}))
}

func TestWorkflowRefiner_ParseResponse_MapsToProceduralType(t *testing.T) {
	t.Parallel()

	r := NewWorkflowRefiner()

	mems := r.ParseResponse(`[{"procedure": "run make test before pushing", "confidence": 0.8}]`)
	assert.Len(t, mems, 1)
	assert.Equal(t, MemoryTypeProcedural, mems[0].Type)
}

func TestContextRefiner_HasEnoughData(t *testing.T) {
	t.Parallel()

	r := NewContextRefiner()

	assert.True(t, r.HasEnoughData(capture.CaptureBundle{Files: make([]capture.FileActivity, 3)}))
	assert.False(t, r.HasEnoughData(capture.CaptureBundle{}))
}

func TestContextRefiner_ParseResponse_FixedConfidenceNoFloor(t *testing.T) {
	t.Parallel()

	r := NewContextRefiner()

	mems := r.ParseResponse(`[{"note": "debugging a flaky test", "confidence": 0.01}]`)
	assert.Len(t, mems, 1)
	assert.InDelta(t, contextConfidence, mems[0].Confidence, 0.001)
	assert.Equal(t, MemoryTypeSemantic, mems[0].Type)
}

func TestContextRefiner_ParseResponse_EmptyNoteDropped(t *testing.T) {
	t.Parallel()

	r := NewContextRefiner()

	assert.Empty(t, r.ParseResponse(`[{"note": ""}]`))
}

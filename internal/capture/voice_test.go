package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signet-run/signet/pkg/textutil"
)

type fakeRecorder struct {
	path string
	err  error
}

func (f fakeRecorder) Record(context.Context, string, time.Duration) (string, error) {
	return f.path, f.err
}

type fakeVAD struct {
	meanDB float64
	err    error
}

func (f fakeVAD) MeanVolumeDB(context.Context, string) (float64, error) {
	return f.meanDB, f.err
}

type fakeTranscriber struct {
	transcript Transcript
	err        error
}

func (f fakeTranscriber) Transcribe(context.Context, string) (Transcript, error) {
	return f.transcript, f.err
}

func newTestVoiceAdapter(t *testing.T, vad VADAnalyzer, transcriber Transcriber) *VoiceAdapter {
	t.Helper()

	dir := t.TempDir()
	recorder := fakeRecorder{path: dir + "/segment.wav"}

	a := NewVoiceAdapter(VoiceConfig{}, recorder, vad, transcriber, testLogger(), dir)

	return a
}

func TestVoiceAdapter_RunSegment_SilentBelowThreshold_NoTranscript(t *testing.T) {
	t.Parallel()

	a := newTestVoiceAdapter(t, fakeVAD{meanDB: -91}, fakeTranscriber{})

	a.runSegment(context.Background())

	events := a.Since(time.Time{})
	require.Empty(t, events)
	assert.Equal(t, 0, a.Count())
	assert.Empty(t, a.Since(time.Time{}))
}

func TestVoiceAdapter_RunSegment_AboveThreshold_Transcribes(t *testing.T) {
	t.Parallel()

	transcript := Transcript{
		Text:     "hello there",
		Language: "en",
		Segments: []TranscriptSegment{{NoSpeechProb: 0.1}, {NoSpeechProb: 0.3}},
	}

	a := newTestVoiceAdapter(t, fakeVAD{meanDB: -10}, fakeTranscriber{transcript: transcript})

	a.runSegment(context.Background())

	events := a.Since(time.Time{})
	require.Len(t, events, 1)
	assert.True(t, events[0].IsSpeaking)
	assert.Equal(t, "hello there", events[0].Transcript)
	assert.Equal(t, "en", events[0].Language)
	assert.InDelta(t, 0.8, events[0].Confidence, 0.01)
}

func TestVoiceAdapter_RunSegment_RedactsKeywords(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recorder := fakeRecorder{path: dir + "/segment.wav"}
	transcript := Transcript{Text: "my password is hunter2"}

	a := NewVoiceAdapter(VoiceConfig{RedactKeywords: []string{"password is hunter2"}}, recorder, fakeVAD{meanDB: -10}, fakeTranscriber{transcript: transcript}, testLogger(), dir)

	a.runSegment(context.Background())

	events := a.Since(time.Time{})
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Transcript, textutil.RedactionMarker)
}

func TestVoiceAdapter_Trigger_DropsOverlapping(t *testing.T) {
	t.Parallel()

	a := newTestVoiceAdapter(t, fakeVAD{meanDB: -10}, fakeTranscriber{transcript: Transcript{Text: "hello"}})
	a.inFlight.Store(true)

	a.trigger(context.Background())

	assert.Equal(t, 0, a.Count())
}

func TestNormalizeVAD_ClampsToRange(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, normalizeVAD(-200), 0.0001)
	assert.InDelta(t, 1.0, normalizeVAD(50), 0.0001)
}

func TestTranscriptConfidence_NoSegments_DefaultsToHalf(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, defaultTranscriptConfidence, transcriptConfidence(Transcript{}), 0.0001)
}

package distill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signet-run/signet/internal/memory"
)

func TestRunCognitiveProfile_PersistsSystemMemoryWithTag(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.memories = []memory.Memory{
		{ID: "m1", Type: memory.TypeSkill, Content: "wrote a Go concurrency pattern", CreatedAt: time.Now()},
	}

	llm := &fakeLLM{response: `{"summary":"Go backend engineer","topSkills":["Go","concurrency"],"preferredEditor":"unknown","preferredTerminal":"unknown"}`}

	d := NewDistiller(store, llm)

	profile, err := d.RunCognitiveProfile(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, "Go backend engineer", profile.Summary)
	assert.Equal(t, []string{"Go", "concurrency"}, profile.TopSkills)

	require.Len(t, store.remembered, 1)
	assert.Equal(t, memory.TypeSystem, store.remembered[0].Type)
	assert.Contains(t, store.remembered[0].Tags, cognitiveProfileTag)
}

func TestRunCognitiveProfile_FallsBackWhenLLMUnavailable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	llm := &fakeLLM{err: assertErr{}}

	d := NewDistiller(store, llm)

	profile, err := d.RunCognitiveProfile(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, profile.Summary)
	require.Len(t, store.remembered, 1)
}

type assertErr struct{}

func (assertErr) Error() string { return "llm unreachable" }

func TestRunCognitiveProfile_UnknownApproachFallsBackToSystematic(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	llm := &fakeLLM{response: `{"summary":"Go backend engineer","problemSolving":{"approach":"fast"},"confidenceScore":0.8}`}

	d := NewDistiller(store, llm)

	profile, err := d.RunCognitiveProfile(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, "systematic", profile.ProblemSolving.Approach)
	assert.Equal(t, 0.8, profile.ConfidenceScore)
}

func TestRunCognitiveProfile_OverwritesExistingProfileInPlace(t *testing.T) {
	t.Parallel()

	store := newFakeStore()

	llm := &fakeLLM{response: `{"summary":"first pass","topSkills":["Go"]}`}
	d := NewDistiller(store, llm)

	_, err := d.RunCognitiveProfile(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, store.remembered, 1)

	llm.response = `{"summary":"second pass","topSkills":["Go","Rust"]}`

	second, err := d.RunCognitiveProfile(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "second pass", second.Summary)

	// Still exactly one Remember call — the second cycle updated the row
	// in place instead of inserting a new one.
	assert.Len(t, store.remembered, 1)
	require.Len(t, store.memories, 1)
	assert.Contains(t, store.memories[0].Content, "second pass")
}

func TestPeakHours_PicksHoursAboveSeventyPercentOfMean(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var timestamps []time.Time
	for i := 0; i < 10; i++ {
		timestamps = append(timestamps, base.Add(9*time.Hour))
	}

	for i := 0; i < 1; i++ {
		timestamps = append(timestamps, base.Add(3*time.Hour))
	}

	hours := peakHours(timestamps)
	assert.Contains(t, hours, 9)
	assert.NotContains(t, hours, 3)
}

func TestClassifyContextSwitches_Thresholds(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var screens []memory.ScreenCaptureRow
	for i := 0; i < 20; i++ {
		app := "vscode"
		if i%2 == 0 {
			app = "chrome"
		}

		screens = append(screens, memory.ScreenCaptureRow{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			FocusedApp: app,
		})
	}

	level := classifyContextSwitches(screens)
	assert.Equal(t, ContextSwitchHigh, level)
}

func TestResolveUnknown_FallsBackToKeywordMatch(t *testing.T) {
	t.Parallel()

	result := resolveUnknown("unknown", []string{"Visual Studio Code", "Chrome"}, knownEditors)
	assert.Equal(t, "Visual Studio Code", result)
}

func TestResolveUnknown_KeepsLLMValueWhenNotUnknown(t *testing.T) {
	t.Parallel()

	result := resolveUnknown("neovim", []string{"Chrome"}, knownEditors)
	assert.Equal(t, "neovim", result)
}

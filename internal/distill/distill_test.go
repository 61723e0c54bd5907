package distill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldRun_TrueOnFirstRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	d := NewDistiller(store, nil)

	should, err := d.ShouldRun(context.Background(), time.Now(), 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldRun_FalseWithinInterval(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Now()
	store.state[stateLastRun] = now.UTC().Format(time.RFC3339)

	d := NewDistiller(store, nil)

	should, err := d.ShouldRun(context.Background(), now.Add(time.Hour), 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, should)
}

func TestShouldRun_TrueAfterIntervalElapses(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Now()
	store.state[stateLastRun] = now.Add(-48 * time.Hour).UTC().Format(time.RFC3339)

	d := NewDistiller(store, nil)

	should, err := d.ShouldRun(context.Background(), now, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, should)
}

func TestRun_WritesAllFourGatingKeys(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	llm := &fakeLLM{response: `{"summary":"test","topSkills":["Go"]}`}

	d := NewDistiller(store, llm)

	require.NoError(t, d.Run(context.Background(), time.Now()))

	assert.NotEmpty(t, store.state[stateLastProfileUpdate])
	assert.NotEmpty(t, store.state[stateLastGraphUpdate])
	assert.NotEmpty(t, store.state[stateLastCardGeneration])
	assert.NotEmpty(t, store.state[stateLastRun])
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndRecentScreenCaptures(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.RecordScreenCapture(ctx, "scr1", now, "Code", "main.go — signet"))

	rows, err := s.RecentScreenCaptures(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Code", rows[0].FocusedApp)
}

func TestRecordAndRecentTerminalCaptures(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.RecordTerminalCapture(ctx, "term1", now, "go test ./..."))

	rows, err := s.RecentTerminalCaptures(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "go test ./...", rows[0].Command)
}

func TestPerceptionState_SetThenGet(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)
	ctx := context.Background()

	got, err := s.GetPerceptionState(ctx, "distillation.lastRun")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetPerceptionState(ctx, "distillation.lastRun", "2026-07-30T00:00:00Z"))

	got, err = s.GetPerceptionState(ctx, "distillation.lastRun")
	require.NoError(t, err)
	assert.Equal(t, "2026-07-30T00:00:00Z", got)

	require.NoError(t, s.SetPerceptionState(ctx, "distillation.lastRun", "2026-07-31T00:00:00Z"))

	got, err = s.GetPerceptionState(ctx, "distillation.lastRun")
	require.NoError(t, err)
	assert.Equal(t, "2026-07-31T00:00:00Z", got)
}

func TestRecentMemoriesByTypes_FiltersByTypeAndSince(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Remember(ctx, RememberInput{Content: "a skill memory", Type: TypeSkill})
	require.NoError(t, err)
	_, err = s.Remember(ctx, RememberInput{Content: "a preference memory", Type: TypePreference})
	require.NoError(t, err)

	rows, err := s.RecentMemoriesByTypes(ctx, []Type{TypeSkill, TypeDecision}, time.Time{}, 500)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, TypeSkill, rows[0].Type)
}

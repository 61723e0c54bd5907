package capture

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScreenBackend struct {
	app, window, bundleID string
	text                  string
	err                   error
}

func (f *fakeScreenBackend) FocusedWindow(context.Context) (string, string, string, error) {
	return f.app, f.window, f.bundleID, f.err
}

func (f *fakeScreenBackend) OCRText(context.Context) (string, error) {
	return f.text, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScreenAdapter_Tick_AppendsCapture(t *testing.T) {
	t.Parallel()

	backend := &fakeScreenBackend{app: "Editor", window: "main.go", text: "func main() {}"}
	a := NewScreenAdapter(ScreenConfig{}, backend, testLogger())

	a.tick(context.Background())

	assert.Equal(t, 1, a.Count())
}

func TestScreenAdapter_Tick_SkipsExcludedApp(t *testing.T) {
	t.Parallel()

	backend := &fakeScreenBackend{app: "1Password", window: "Vault"}
	a := NewScreenAdapter(ScreenConfig{ExcludeApps: []string{"1Password"}}, backend, testLogger())

	a.tick(context.Background())

	assert.Equal(t, 0, a.Count())
}

func TestScreenAdapter_Tick_SkipsExcludedWindow(t *testing.T) {
	t.Parallel()

	backend := &fakeScreenBackend{app: "Browser", window: "Private Banking"}
	a := NewScreenAdapter(ScreenConfig{ExcludeWindows: []string{"Banking"}}, backend, testLogger())

	a.tick(context.Background())

	assert.Equal(t, 0, a.Count())
}

func TestScreenAdapter_Tick_TruncatesLongOCRText(t *testing.T) {
	t.Parallel()

	longText := make([]byte, MaxOCRTextLen+500)
	for i := range longText {
		longText[i] = 'a'
	}

	backend := &fakeScreenBackend{app: "Editor", window: "main.go", text: string(longText)}
	a := NewScreenAdapter(ScreenConfig{}, backend, testLogger())

	a.tick(context.Background())

	last, ok := a.store.Last()
	require.True(t, ok)
	assert.Len(t, last.OCRText, MaxOCRTextLen)
}

func TestScreenAdapter_IsDuplicate_RequiresMinConsecutiveRuns(t *testing.T) {
	t.Parallel()

	a := NewScreenAdapter(ScreenConfig{}, &fakeScreenBackend{}, testLogger())

	assert.False(t, a.isDuplicate("app", "win", "same text here"))
	// Second consecutive identical-context tick with near-identical text is already a dup.
	assert.True(t, a.isDuplicate("app", "win", "same text here"))
	assert.True(t, a.isDuplicate("app", "win", "same text here"))
}

func TestScreenAdapter_Tick_ThreeIdenticalTicksYieldOneCapture(t *testing.T) {
	t.Parallel()

	backend := &fakeScreenBackend{app: "Code", window: "main.ts", text: "const x = 1;"}
	a := NewScreenAdapter(ScreenConfig{}, backend, testLogger())

	a.tick(context.Background())
	a.tick(context.Background())
	a.tick(context.Background())

	assert.Equal(t, 1, a.Count())
}

func TestScreenAdapter_IsDuplicate_ContextChangeResetsRun(t *testing.T) {
	t.Parallel()

	a := NewScreenAdapter(ScreenConfig{}, &fakeScreenBackend{}, testLogger())

	a.isDuplicate("app", "win", "x")
	a.isDuplicate("app", "win", "x")
	assert.False(t, a.isDuplicate("app", "other-win", "x"))
}

func TestScreenAdapter_IsDuplicate_DissimilarTextNotDup(t *testing.T) {
	t.Parallel()

	a := NewScreenAdapter(ScreenConfig{}, &fakeScreenBackend{}, testLogger())

	a.isDuplicate("app", "win", "alpha beta gamma")
	a.isDuplicate("app", "win", "alpha beta gamma")
	assert.False(t, a.isDuplicate("app", "win", "completely different words now"))
}

func TestScreenAdapter_StartStop(t *testing.T) {
	t.Parallel()

	backend := &fakeScreenBackend{app: "Editor", window: "main.go", text: "hi"}
	a := NewScreenAdapter(ScreenConfig{IntervalSeconds: 1}, backend, testLogger())

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Stop(ctx))
}

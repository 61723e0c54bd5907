package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDailyLogFile_CreatesTodaysFileUnderDaemonLogs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".daemon", "logs"), 0o755))

	f, err := openDailyLogFile(dir)
	require.NoError(t, err)
	defer f.Close()

	want := filepath.Join(dir, ".daemon", "logs", "signet-"+time.Now().Format("2006-01-02")+".log")
	assert.Equal(t, want, f.Name())
	assert.FileExists(t, want)
}

func TestOpenDailyLogFile_AppendsAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".daemon", "logs"), 0o755))

	f1, err := openDailyLogFile(dir)
	require.NoError(t, err)
	_, err = f1.WriteString("first\n")
	require.NoError(t, err)
	require.NoError(t, f1.Close())

	f2, err := openDailyLogFile(dir)
	require.NoError(t, err)
	defer f2.Close()
	_, err = f2.WriteString("second\n")
	require.NoError(t, err)

	contents, err := os.ReadFile(f2.Name())
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(contents))
}

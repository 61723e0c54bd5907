package daemon

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHookSessionStart_InjectsRelevantMemories(t *testing.T) {
	d := newTestServer(t)

	remRec := doJSON(t, d, http.MethodPost, "/api/memory/remember", rememberRequest{
		Content: "project signet uses sqlite for memory storage",
		Tags:    []string{"signet"},
	})
	require.Equal(t, http.StatusOK, remRec.Code)

	rec := doJSON(t, d, http.MethodPost, "/api/hooks/session-start", sessionStartRequest{
		Harness: "claude-code",
		Project: "signet",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "inject")
	assert.Contains(t, body, "memories")
}

func TestHandleHookUserPromptSubmit_EmptyPromptSkipsRecall(t *testing.T) {
	d := newTestServer(t)

	rec := doJSON(t, d, http.MethodPost, "/api/hooks/user-prompt-submit", userPromptSubmitRequest{Harness: "claude-code"})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["memoryCount"])
}

func TestHandleHookSessionEnd_AlwaysReportsZeroSaved(t *testing.T) {
	d := newTestServer(t)

	rec := doJSON(t, d, http.MethodPost, "/api/hooks/session-end", sessionEndRequest{Harness: "claude-code", SessionID: "abc"})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["memoriesSaved"])
}

func TestHandleHookAck_PreCompactionAndCompactionComplete(t *testing.T) {
	d := newTestServer(t)

	for _, path := range []string{"/api/hooks/pre-compaction", "/api/hooks/compaction-complete"} {
		rec := doJSON(t, d, http.MethodPost, path, map[string]string{"harness": "claude-code"})
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

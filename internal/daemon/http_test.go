package daemon

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Daemon {
	t.Helper()

	store := openTestStore(t)

	return New(Config{
		Addr:   "127.0.0.1:0",
		Store:  store,
		Logger: slog.New(slog.DiscardHandler),
	}, NewLogRing())
}

func doJSON(t *testing.T, d *Daemon, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()

	newRouter(d).ServeHTTP(rec, req)

	return rec
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	d := newTestServer(t)

	rec := doJSON(t, d, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ok"])
}

func TestHandleStatus_ReportsPidAndVersion(t *testing.T) {
	d := newTestServer(t)

	rec := doJSON(t, d, http.MethodGet, "/api/status", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "dev", body["version"])
	assert.NotNil(t, body["pid"])
}

func TestHandleRemember_StoresAndReturnsID(t *testing.T) {
	d := newTestServer(t)

	rec := doJSON(t, d, http.MethodPost, "/api/memory/remember", rememberRequest{
		Content: "prefers tabs over spaces",
		Tags:    []string{"preference"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["id"])
}

func TestHandleRemember_RejectsEmptyContent(t *testing.T) {
	d := newTestServer(t)

	rec := doJSON(t, d, http.MethodPost, "/api/memory/remember", rememberRequest{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["error"])
}

func TestHandleRecall_ReturnsStoredMemory(t *testing.T) {
	d := newTestServer(t)

	remRec := doJSON(t, d, http.MethodPost, "/api/memory/remember", rememberRequest{Content: "likes neovim"})
	assert.Equal(t, http.StatusOK, remRec.Code)

	recallRec := doJSON(t, d, http.MethodPost, "/api/memory/recall", recallRequest{Query: "neovim", Limit: 5})
	assert.Equal(t, http.StatusOK, recallRec.Code)

	var body struct {
		Method  string `json:"method"`
		Results []struct {
			Content string `json:"content"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(recallRec.Body.Bytes(), &body))
	assert.Equal(t, "hybrid", body.Method)
}

func TestHandleEmbeddingGaps_ReturnsCoverage(t *testing.T) {
	d := newTestServer(t)

	rec := doJSON(t, d, http.MethodGet, "/api/repair/embedding-gaps", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "total")
	assert.Contains(t, body, "coverage")
}

func TestHandleReEmbed_DefaultsWithEmptyBody(t *testing.T) {
	d := newTestServer(t)

	rec := doJSON(t, d, http.MethodPost, "/api/repair/re-embed", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "backfill", body["action"])
}

func TestHandleLogs_ReturnsTailedRecords(t *testing.T) {
	d := newTestServer(t)
	d.logRing.Append(LogRecord{Message: "hello", Level: "INFO"})

	rec := doJSON(t, d, http.MethodGet, "/api/logs", nil)

	assert.Equal(t, http.StatusOK, rec.Code)

	var records []LogRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "hello", records[0].Message)
}

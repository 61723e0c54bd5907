package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/signet-run/signet/internal/memory"
)

// hookInjectLimit bounds how many memories a session-start or
// user-prompt-submit hook injects into a harness's context window.
const hookInjectLimit = 8

type sessionStartRequest struct {
	Harness string `json:"harness"`
	Project string `json:"project"`
}

// handleHookSessionStart answers a harness's session-start hook with the
// memories recalled for the request's project name (up to hookInjectLimit)
// to seed the new session's context, per spec.md §6. An empty project
// yields no memories.
func (d *Daemon) handleHookSessionStart(w http.ResponseWriter, r *http.Request) {
	var req sessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	query := req.Project

	results, err := d.store.Recall(r.Context(), memory.RecallInput{
		Query: query,
		Limit: hookInjectLimit,
	})
	if err != nil {
		// Hook endpoints degrade to a no-op rather than error: a harness
		// must always be able to start a session even if recall is down.
		d.logger.WarnContext(r.Context(), "session-start recall failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"inject": "", "memories": []memory.RecallResult{}})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"inject":   formatInjection(results),
		"memories": results,
	})
}

type userPromptSubmitRequest struct {
	Harness    string `json:"harness"`
	UserPrompt string `json:"userPrompt"`
}

// handleHookUserPromptSubmit recalls memories relevant to the prompt the
// user just submitted so the harness can inject them ahead of the model
// call.
func (d *Daemon) handleHookUserPromptSubmit(w http.ResponseWriter, r *http.Request) {
	var req userPromptSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserPrompt == "" {
		writeJSON(w, http.StatusOK, map[string]any{"inject": "", "memoryCount": 0})
		return
	}

	results, err := d.store.Recall(r.Context(), memory.RecallInput{
		Query: req.UserPrompt,
		Limit: hookInjectLimit,
	})
	if err != nil {
		d.logger.WarnContext(r.Context(), "user-prompt-submit recall failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"inject": "", "memoryCount": 0})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"inject":      formatInjection(results),
		"memoryCount": len(results),
	})
}

type sessionEndRequest struct {
	Harness        string `json:"harness"`
	TranscriptPath string `json:"transcriptPath"`
	SessionID      string `json:"sessionId"`
	Reason         string `json:"reason"`
}

// handleHookSessionEnd acknowledges a harness's session-end hook.
// Harness-specific transcript parsing is out of scope (connector plugins
// are thin glue over the core, per spec.md's non-goals), so this always
// reports zero memories saved; extraction of session content into
// memories happens through the capture/refiner pipeline, not this hook.
func (d *Daemon) handleHookSessionEnd(w http.ResponseWriter, r *http.Request) {
	var req sessionEndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"memoriesSaved": 0})
}

// handleHookAck idempotently acknowledges pre-compaction and
// compaction-complete hooks. Signet keeps no per-harness compaction
// state, so both are no-ops that always succeed.
func (d *Daemon) handleHookAck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// formatInjection renders recall results as the plain-text block a
// harness prepends to its context window.
func formatInjection(results []memory.RecallResult) string {
	if len(results) == 0 {
		return ""
	}

	out := "Relevant memories:\n"
	for _, res := range results {
		out += "- " + res.Content + "\n"
	}

	return out
}

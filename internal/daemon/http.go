package daemon

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signet-run/signet/internal/memory"
	"github.com/signet-run/signet/pkg/observability"
)

// signetVersion is reported by /api/status. Overridden at build time via
// -ldflags in real releases; a constant here keeps the daemon buildable
// standalone.
var signetVersion = "dev"

// newLoopbackListener binds addr, defaulting host to loopback when absent,
// since signet's HTTP API is not meant to be reachable off-box (spec.md
// §4.5: "bind loopback TCP port").
func newLoopbackListener(addr string) (net.Listener, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	if host == "" {
		host = "127.0.0.1"
	}

	return net.Listen("tcp", net.JoinHostPort(host, port))
}

// newRouter builds the chi router implementing spec.md §6's full HTTP
// surface, wrapped in the same access-log/tracing/panic-recovery
// middleware the observability package provides elsewhere in this corpus.
func newRouter(d *Daemon) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", d.handleHealth)
	r.Get("/api/status", d.handleStatus)

	r.Post("/api/memory/remember", d.handleRemember)
	r.Post("/api/memory/recall", d.handleRecall)

	r.Get("/api/repair/embedding-gaps", d.handleEmbeddingGaps)
	r.Post("/api/repair/re-embed", d.handleReEmbed)

	r.Post("/api/hooks/session-start", d.handleHookSessionStart)
	r.Post("/api/hooks/user-prompt-submit", d.handleHookUserPromptSubmit)
	r.Post("/api/hooks/session-end", d.handleHookSessionEnd)
	r.Post("/api/hooks/pre-compaction", d.handleHookAck)
	r.Post("/api/hooks/compaction-complete", d.handleHookAck)

	r.Get("/api/logs", d.handleLogs)
	r.Get("/api/logs/stream", d.handleLogsStream)

	if d.obs.MetricsHandler != nil {
		r.Handle("/metrics", d.obs.MetricsHandler)
	}

	var handler http.Handler = r
	if d.obs.Tracer != nil && d.obs.Logger != nil {
		handler = observability.HTTPMiddleware(d.obs.Tracer, d.obs.Logger, r)
	}

	return handler
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := d.store.DB().PingContext(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"pid":     os.Getpid(),
		"uptime":  d.Uptime().String(),
		"version": signetVersion,
	})
}

type rememberRequest struct {
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Tags       []string `json:"tags"`
	Importance float64  `json:"importance"`
	Pinned     bool     `json:"pinned"`
	Who        string   `json:"who"`
	Source     string   `json:"source"`
}

func (d *Daemon) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req rememberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Content == "" {
		writeJSONError(w, http.StatusBadRequest, "content is required")
		return
	}

	memType := memory.Type(req.Type)
	if memType == "" {
		memType = memory.TypeExplicit
	}

	importance := req.Importance
	if importance == 0 {
		importance = 0.5
	}

	result, err := d.store.Remember(r.Context(), memory.RememberInput{
		Content:    req.Content,
		Type:       memType,
		Importance: importance,
		Confidence: 1.0,
		Tags:       req.Tags,
		Who:        req.Who,
		Pinned:     req.Pinned,
		Source:     req.Source,
	})
	if err != nil {
		d.logger.WarnContext(r.Context(), "remember failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to store memory")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       result.ID,
		"embedded": result.Embedded,
		"type":     memType,
		"tags":     req.Tags,
		"pinned":   req.Pinned,
	})
}

type recallRequest struct {
	Query string   `json:"query"`
	Limit int      `json:"limit"`
	Type  string   `json:"type"`
	Tags  []string `json:"tags"`
	Who   string   `json:"who"`
	Since string   `json:"since"`
	Until string   `json:"until"`
}

func (d *Daemon) handleRecall(w http.ResponseWriter, r *http.Request) {
	var req recallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := memory.RecallInput{
		Query: req.Query,
		Limit: req.Limit,
		Type:  memory.Type(req.Type),
		Tags:  req.Tags,
		Who:   req.Who,
	}

	if req.Since != "" {
		if t, err := time.Parse(time.RFC3339, req.Since); err == nil {
			in.Since = t
		}
	}

	if req.Until != "" {
		if t, err := time.Parse(time.RFC3339, req.Until); err == nil {
			in.Until = t
		}
	}

	results, err := d.store.Recall(r.Context(), in)
	if err != nil {
		d.logger.WarnContext(r.Context(), "recall failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "recall failed")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"method":  "hybrid",
		"results": results,
	})
}

func (d *Daemon) handleEmbeddingGaps(w http.ResponseWriter, r *http.Request) {
	audit, err := d.store.AuditEmbeddingGaps(r.Context())
	if err != nil {
		d.logger.WarnContext(r.Context(), "embedding gap audit failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "audit failed")

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":      audit.Total,
		"unembedded": audit.Unembedded,
		"coverage":   audit.Coverage,
	})
}

type reEmbedRequest struct {
	BatchSize int  `json:"batchSize"`
	DryRun    bool `json:"dryRun"`
}

func (d *Daemon) handleReEmbed(w http.ResponseWriter, r *http.Request) {
	var req reEmbedRequest
	// An absent or empty body means "use defaults"; a malformed non-empty
	// body is still a client error.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := d.store.Backfill(r.Context(), req.BatchSize, req.DryRun)
	if err != nil {
		d.logger.WarnContext(r.Context(), "backfill failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "backfill failed")

		return
	}

	action := "backfill"
	if req.DryRun {
		action = "dry-run"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"action":   action,
		"success":  true,
		"affected": result.Affected,
		"message":  result.Message,
	})
}

func (d *Daemon) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			limit = n
		}
	}

	records := d.logRing.Tail(limit, r.URL.Query().Get("level"), r.URL.Query().Get("category"))

	writeJSON(w, http.StatusOK, records)
}

func (d *Daemon) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch, unsubscribe := d.logRing.Subscribe()
	defer unsubscribe()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				return
			}

			flusher.Flush()
		case rec, open := <-ch:
			if !open {
				return
			}

			b, err := json.Marshal(rec)
			if err != nil {
				continue
			}

			if _, err := w.Write([]byte("data: " + string(b) + "\n\n")); err != nil {
				return
			}

			flusher.Flush()
		}
	}
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}

	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

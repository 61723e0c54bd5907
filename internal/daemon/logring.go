package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// logRingCapacity is the maximum number of records the ring holds before
// the oldest entries are head-dropped, per spec.md's log ring contract.
const logRingCapacity = 2000

// LogRecord is one structured log line, matching the on-disk JSON shape
// documented for .daemon/logs/signet-YYYY-MM-DD.log.
type LogRecord struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Category   string         `json:"category"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	DurationMS int64          `json:"duration,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// LogRing is a bounded, head-drop FIFO of LogRecord, safe for concurrent
// writers (one per subsystem logger) and readers (the /api/logs and
// /api/logs/stream endpoints).
type LogRing struct {
	mu      sync.Mutex
	records []LogRecord
	subs    map[chan LogRecord]struct{}
}

// NewLogRing creates an empty ring.
func NewLogRing() *LogRing {
	return &LogRing{subs: map[chan LogRecord]struct{}{}}
}

// Append adds rec, dropping the oldest record if the ring is at capacity,
// and fans it out to any active subscribers.
func (r *LogRing) Append(rec LogRecord) {
	r.mu.Lock()

	r.records = append(r.records, rec)
	if len(r.records) > logRingCapacity {
		r.records = r.records[len(r.records)-logRingCapacity:]
	}

	// Fan out under the lock so an unsubscribe cannot close a channel
	// between snapshot and send.
	for ch := range r.subs {
		select {
		case ch <- rec:
		default:
			// Slow subscriber; drop rather than block Append.
		}
	}

	r.mu.Unlock()
}

// Tail returns up to limit most recent records, optionally filtered by
// level and/or category (exact match, empty means no filter).
func (r *LogRing) Tail(limit int, level, category string) []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []LogRecord

	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.records[i]
		if level != "" && rec.Level != level {
			continue
		}

		if category != "" && rec.Category != category {
			continue
		}

		out = append(out, rec)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return out
}

// Subscribe registers a channel to receive every future Append, returning
// an unsubscribe function. The channel is buffered so a slow SSE client
// doesn't stall Append; if it fills, new records are dropped for that
// subscriber rather than blocking the ring.
func (r *LogRing) Subscribe() (<-chan LogRecord, func()) {
	ch := make(chan LogRecord, 64)

	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	unsubscribe := func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
		close(ch)
	}

	return ch, unsubscribe
}

// ringHandler is an slog.Handler that appends every record to a LogRing in
// addition to whatever the daemon's base handler does, letting /api/logs
// and /api/logs/stream read back what was just logged without re-parsing
// the on-disk file.
type ringHandler struct {
	ring *LogRing
	next slog.Handler
}

// NewRingHandler wraps next so every record also lands in ring.
func NewRingHandler(ring *LogRing, next slog.Handler) slog.Handler {
	return &ringHandler{ring: ring, next: next}
}

func (h *ringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ringHandler) Handle(ctx context.Context, record slog.Record) error {
	data := map[string]any{}

	var (
		category string
		errStr   string
		duration int64
	)

	record.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "category":
			category = a.Value.String()
		case "error":
			errStr = a.Value.String()
		case "duration_ms":
			duration = a.Value.Int64()
		default:
			data[a.Key] = attrValue(a)
		}

		return true
	})

	if len(data) == 0 {
		data = nil
	}

	h.ring.Append(LogRecord{
		Timestamp:  record.Time,
		Level:      record.Level.String(),
		Category:   category,
		Message:    record.Message,
		Data:       data,
		DurationMS: duration,
		Error:      errStr,
	})

	return h.next.Handle(ctx, record)
}

func (h *ringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringHandler{ring: h.ring, next: h.next.WithAttrs(attrs)}
}

func (h *ringHandler) WithGroup(name string) slog.Handler {
	return &ringHandler{ring: h.ring, next: h.next.WithGroup(name)}
}

// attrValue converts an slog.Value to a plain Go value suitable for JSON
// encoding in LogRecord.Data.
func attrValue(a slog.Attr) any {
	switch a.Value.Kind() {
	case slog.KindString:
		return a.Value.String()
	case slog.KindInt64:
		return a.Value.Int64()
	case slog.KindUint64:
		return a.Value.Uint64()
	case slog.KindFloat64:
		return a.Value.Float64()
	case slog.KindBool:
		return a.Value.Bool()
	case slog.KindTime:
		return a.Value.Time()
	case slog.KindDuration:
		return a.Value.Duration()
	default:
		b, err := json.Marshal(a.Value.Any())
		if err != nil {
			return a.Value.String()
		}

		return json.RawMessage(b)
	}
}

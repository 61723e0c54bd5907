// Package observability provides health/readiness probes and RED metrics
// shared across signet's daemon, capture, refiner, and memory subsystems.
package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
)

const (
	healthStatusOK          = "ok"
	healthStatusUnavailable = "unavailable"
)

// ReadyCheck reports whether a subsystem is ready. A non-nil error
// describes the failure.
type ReadyCheck func(ctx context.Context) error

// HealthHandler returns an [http.Handler] for the liveness probe at
// GET /health. It always returns 200 with {"ok":true} — liveness means the
// process is scheduling goroutines, not that every subsystem is healthy.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(http.StatusOK)
		writeOrDiscard(rw, []byte(`{"ok":true}`))
	})
}

// ReadyHandler returns an [http.Handler] for readiness checks. It runs all
// provided checks; if any fail it returns 503 with {"status":"unavailable"}.
// With no checks, or once all pass, it returns 200 with {"status":"ok"}.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		rw.Header().Set("Content-Type", "application/json")

		for _, check := range checks {
			err := check(hr.Context())
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				writeHealthJSON(rw, healthStatusUnavailable)

				return
			}
		}

		rw.WriteHeader(http.StatusOK)
		writeHealthJSON(rw, healthStatusOK)
	})
}

func writeHealthJSON(w io.Writer, status string) {
	data, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return
	}

	writeOrDiscard(w, data)
}

func writeOrDiscard(w io.Writer, data []byte) {
	_, err := w.Write(data)
	if err != nil {
		return
	}
}

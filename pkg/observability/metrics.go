package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "signet.requests.total"
	metricRequestDuration  = "signet.request.duration.seconds"
	metricErrorsTotal      = "signet.errors.total"
	metricInflightRequests = "signet.inflight.requests"

	attrOp     = "op"
	attrStatus = "status"

	statusOK    = "ok"
	statusError = "error"
)

// durationBucketBoundaries covers 1ms to 120s. The low end serves SQLite
// reads in the memory store and capture adapter ticks; the high end covers
// a local LLM call timing out against an ollama refiner.
var durationBucketBoundaries = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// REDMetrics holds the OTel instruments for Rate, Error, Duration metrics,
// shared across the daemon's HTTP API, capture adapters, refiners, and
// distillation jobs — each distinguished by the "op" attribute.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	build := newMetricBuilder(mt)

	reqTotal := build.counter(metricRequestsTotal, "Total number of requests", "{request}")
	reqDuration := build.histogram(metricRequestDuration, "Request duration in seconds", "s", durationBucketBoundaries...)
	errTotal := build.counter(metricErrorsTotal, "Total number of errors", "{error}")
	inflight := build.upDownCounter(metricInflightRequests, "Number of in-flight requests", "{request}")

	if build.err != nil {
		return nil, build.err
	}

	return &REDMetrics{
		requestsTotal:    reqTotal,
		requestDuration:  reqDuration,
		errorsTotal:      errTotal,
		inflightRequests: inflight,
	}, nil
}

// RecordRequest records a completed request with its operation, status, and duration.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == statusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrOp, op),
		))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// Observe runs fn, recording its RED metrics under op. The status attribute
// is "ok" or "error" depending on whether fn returned a non-nil error.
// Used by capture adapters and refiners to instrument a unit of work
// without duplicating the inflight/duration/error bookkeeping at each
// call site.
func (rm *REDMetrics) Observe(ctx context.Context, op string, fn func() error) error {
	done := rm.TrackInflight(ctx, op)
	defer done()

	start := time.Now()
	err := fn()
	status := statusOK

	if err != nil {
		status = statusError
	}

	rm.RecordRequest(ctx, op, status, time.Since(start))

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/signet-run/signet/pkg/observability"
)

// acceptanceSpanCount is the expected number of spans in the acceptance test
// (root + recall + refine).
const acceptanceSpanCount = 3

// acceptanceMemoryCount is the simulated memory count used in log assertions.
const acceptanceMemoryCount = 7

// TestAcceptance_EndToEnd verifies all three observability signals (traces,
// metrics, structured logs with trace context) work together across a
// simulated recall-then-refine request.
func TestAcceptance_EndToEnd(t *testing.T) {
	t.Parallel()

	// Setup: in-memory trace exporter.
	spanExporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	tracer := tp.Tracer("signet")

	// Setup: in-memory metric reader.
	metricReader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader))
	meter := mp.Meter("signet")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	// Setup: structured logger with trace context.
	var logBuf bytes.Buffer

	innerHandler := slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	tracingHandler := observability.NewTracingHandler(innerHandler, "signetd", "test", observability.ModeDaemon)
	logger := slog.New(tracingHandler)

	// Simulate a request: root span, child spans, metrics, logs.
	ctx, rootSpan := tracer.Start(context.Background(), "signet.api.recall")

	_, recallSpan := tracer.Start(ctx, "memory.recall")
	recallSpan.End()

	_, refineSpan := tracer.Start(ctx, "refiner.skill")
	refineSpan.End()

	// Record metrics within the trace context.
	err = red.Observe(ctx, "memory.recall", func() error { return nil })
	require.NoError(t, err)

	// Emit a log line within the trace context.
	logger.InfoContext(ctx, "memory.recall.complete", "memories", acceptanceMemoryCount)

	rootSpan.End()

	// Assert: Traces.
	spans := spanExporter.GetSpans()
	require.Len(t, spans, acceptanceSpanCount, "expected root + 2 child spans")

	spanNames := make(map[string]bool, len(spans))
	for _, s := range spans {
		spanNames[s.Name] = true
	}

	assert.True(t, spanNames["signet.api.recall"], "root span should exist")
	assert.True(t, spanNames["memory.recall"], "recall span should exist")
	assert.True(t, spanNames["refiner.skill"], "refiner span should exist")

	// All spans share the same trace ID.
	traceID := spans[0].SpanContext.TraceID()
	for _, s := range spans[1:] {
		assert.Equal(t, traceID, s.SpanContext.TraceID(),
			"span %q should share trace ID", s.Name)
	}

	// Assert: Metrics.
	var rm metricdata.ResourceMetrics

	err = metricReader.Collect(ctx, &rm)
	require.NoError(t, err)

	reqTotal := findMetric(rm, "signet.requests.total")
	require.NotNil(t, reqTotal, "request counter should be recorded")

	reqDuration := findMetric(rm, "signet.request.duration.seconds")
	require.NotNil(t, reqDuration, "duration histogram should be recorded")

	// Assert: Logs contain trace_id.
	var logRecord map[string]any

	err = json.Unmarshal(logBuf.Bytes(), &logRecord)
	require.NoError(t, err)

	assert.Equal(t, traceID.String(), logRecord["trace_id"],
		"log line should contain the active trace_id")
	assert.Contains(t, logRecord, "span_id",
		"log line should contain span_id")
	assert.Equal(t, "signetd", logRecord["service"],
		"log line should contain service name")

	memories, ok := logRecord["memories"].(float64)
	require.True(t, ok, "memories should be a number")
	assert.InDelta(t, acceptanceMemoryCount, memories, 0,
		"log line should contain custom attributes")
}


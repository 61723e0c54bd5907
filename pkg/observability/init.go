package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "signet"
	meterName  = "signet"
)

// Providers holds the initialized observability providers. Signet has no
// remote telemetry collector: traces are created for request correlation
// in logs only (never exported), and metrics are served locally via
// MetricsHandler for Prometheus to scrape.
type Providers struct {
	// Tracer is the named tracer for creating spans.
	Tracer trace.Tracer

	// Meter is the named meter for creating instruments.
	Meter metric.Meter

	// Logger is the context-aware structured logger.
	Logger *slog.Logger

	// MetricsHandler serves the /metrics scrape endpoint.
	MetricsHandler http.Handler

	// Shutdown flushes all pending telemetry and releases resources.
	// Must be called before process exit.
	Shutdown func(ctx context.Context) error
}

// Init initializes tracing, metrics, and structured logging for a signet
// process. There is no OTLP exporter: spans stay in-process (they exist
// only to correlate trace_id/span_id across log lines of one request),
// and metrics are exported via an embedded Prometheus registry.
func Init(cfg Config) (Providers, error) {
	res, err := buildResource(cfg)
	if err != nil {
		return Providers{}, err
	}

	tp, tpShutdown := buildTracerProvider(cfg, res)

	mp, metricsHandler, mpShutdown, err := buildMeterProvider(res)
	if err != nil {
		shutdownErr := tpShutdown(context.Background())

		return Providers{}, errors.Join(fmt.Errorf("build meter provider: %w", err), shutdownErr)
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger := buildLogger(cfg)

	shutdown := func(shutdownCtx context.Context) error {
		timeoutDur := time.Duration(cfg.ShutdownTimeoutSec) * time.Second
		if timeoutDur <= 0 {
			timeoutDur = time.Duration(defaultShutdownTimeoutSec) * time.Second
		}

		deadlineCtx, cancel := context.WithTimeout(shutdownCtx, timeoutDur)
		defer cancel()

		return errors.Join(tpShutdown(deadlineCtx), mpShutdown(deadlineCtx))
	}

	return Providers{
		Tracer:         tp.Tracer(tracerName),
		Meter:          mp.Meter(meterName),
		Logger:         logger,
		MetricsHandler: metricsHandler,
		Shutdown:       shutdown,
	}, nil
}

func buildResource(cfg Config) (*resource.Resource, error) {
	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersion(cfg.ServiceVersion)))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironment(cfg.Environment)))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, resource.WithAttributes(attribute.String("app.mode", string(cfg.Mode))))
	}

	res, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	return res, nil
}

type shutdownFunc func(ctx context.Context) error

// debugSpanProcessor logs every completed span at debug level, filtered
// through the attribute allow-list. It is the only sink spans ever reach.
type debugSpanProcessor struct {
	logger *slog.Logger
}

func (p *debugSpanProcessor) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *debugSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := make([]any, 0, 4+len(s.Attributes())*2)
	fields = append(fields,
		"span", s.Name(),
		"duration_ms", s.EndTime().Sub(s.StartTime()).Milliseconds(),
	)

	for _, kv := range s.Attributes() {
		fields = append(fields, string(kv.Key), kv.Value.AsInterface())
	}

	p.logger.Debug("span.end", fields...)
}

func (p *debugSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *debugSpanProcessor) ForceFlush(context.Context) error { return nil }

// buildTracerProvider returns a TracerProvider that never exports: spans
// exist only so the tracing handler can stamp trace_id/span_id onto log
// lines belonging to the same request. When DebugTrace is set, completed
// spans are additionally logged at debug level through the attribute filter.
func buildTracerProvider(cfg Config, res *resource.Resource) (trace.TracerProvider, shutdownFunc) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if cfg.DebugTrace {
		debugLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		opts = append(opts, sdktrace.WithSpanProcessor(
			NewAttributeFilter(&debugSpanProcessor{logger: debugLogger}, nil),
		))
	}

	tp := sdktrace.NewTracerProvider(opts...)

	return tp, tp.Shutdown
}

func buildLogger(cfg Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var inner slog.Handler
	if cfg.LogJSON {
		inner = slog.NewJSONHandler(out, handlerOpts)
	} else {
		inner = slog.NewTextHandler(out, handlerOpts)
	}

	handler := NewTracingHandler(inner, cfg.ServiceName, cfg.Environment, cfg.Mode)

	return slog.New(handler)
}

// buildMeterProvider wires metrics to an embedded Prometheus registry and
// returns the /metrics handler alongside it. signet runs as a local daemon
// with no remote collector, so Prometheus scraping is the only export path.
func buildMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, http.Handler, shutdownFunc, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return mp, handler, mp.Shutdown, nil
}

package observability

import (
	"io"
	"log/slog"
)

// AppMode distinguishes the entrypoint observability is wired into. It is
// surfaced on every log line and as a resource attribute on every span.
type AppMode string

const (
	// ModeDaemon is the long-running signetd process.
	ModeDaemon AppMode = "daemon"

	// ModeCLI is a one-shot signetd subcommand invocation (status, version).
	ModeCLI AppMode = "cli"
)

const defaultShutdownTimeoutSec = 5

// Config configures tracing, metrics, and logging for a signet process.
type Config struct {
	// ServiceName identifies the process in logs, spans, and the resource
	// attached to exported metrics.
	ServiceName string

	// ServiceVersion is the build version, empty if unknown.
	ServiceVersion string

	// Environment labels the deployment (dev, prod). Empty is allowed;
	// signet is local-first and usually has no environment concept.
	Environment string

	// Mode is the entrypoint kind, attached to every log line and span.
	Mode AppMode

	// LogLevel is the minimum level emitted by the logger.
	LogLevel slog.Level

	// LogJSON selects JSON over human-readable text output. The daemon
	// always runs JSON; CLI subcommands default to text for a terminal.
	LogJSON bool

	// ShutdownTimeoutSec bounds how long Shutdown waits for the tracer
	// provider to drain before giving up.
	ShutdownTimeoutSec int

	// DebugTrace, when set, attaches a span processor that logs every
	// completed span (filtered through the attribute allow-list) at debug
	// level. Spans are never exported elsewhere; signet has no remote
	// collector.
	DebugTrace bool

	// Output is where structured log lines are written. Defaults to
	// os.Stderr when nil; the daemon entrypoint sets this to a writer that
	// also tees into the daily log file under .daemon/logs.
	Output io.Writer
}

// DefaultConfig returns sensible defaults for a signet daemon process.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "signetd",
		Mode:               ModeDaemon,
		LogLevel:           slog.LevelInfo,
		LogJSON:            true,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}

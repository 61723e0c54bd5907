package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signet-run/signet/internal/config"
	"github.com/signet-run/signet/internal/daemon"
	"github.com/signet-run/signet/internal/distill"
	"github.com/signet-run/signet/internal/memory"
	"github.com/signet-run/signet/internal/refiner"
	"github.com/signet-run/signet/pkg/observability"
	"github.com/signet-run/signet/pkg/version"
)

// defaultPort is the loopback HTTP port signetd binds when SIGNET_PORT
// is unset, per spec.md §6. agent.yaml has no port key.
const defaultPort = "3850"

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the signet daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to agent.yaml (defaults to SIGNET_PATH/agent.yaml)")

	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	statePath, err := config.StatePath()
	if err != nil {
		return fmt.Errorf("resolve state path: %w", err)
	}

	if err := ensureStateDirs(statePath); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := openDailyLogFile(statePath)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Output = io.MultiWriter(os.Stderr, logFile)

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		if shutdownErr := providers.Shutdown(context.Background()); shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	logRing := daemon.NewLogRing()
	providers.Logger = slog.New(daemon.NewRingHandler(logRing, providers.Logger.Handler()))

	embedding := buildEmbeddingProvider(cfg.Embedding, cfg.Perception.OllamaURL)

	store, err := memory.Open(memoryDatabasePath(statePath, cfg.Memory), embedding, cfg.Embedding.Dimensions)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}

	captures := buildCaptureManager(cfg, providers.Logger)

	llm := refiner.NewLLMClient(cfg.Perception.OllamaURL, cfg.Perception.RefinerModel)
	scheduler := refiner.NewScheduler(buildRefiners(), captures, llm, store.AsRememberer(), providers.Logger, cfg.Perception.RefinerIntervalMinutes)
	distiller := distill.NewDistiller(store, llm)

	addr := "127.0.0.1:" + resolvePort()

	d := daemon.New(daemon.Config{
		Addr:          addr,
		Store:         store,
		Captures:      captures,
		Scheduler:     scheduler,
		Distiller:     distiller,
		Logger:        providers.Logger,
		Observability: providers,
	}, logRing)

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := writePIDFile(statePath); err != nil {
		providers.Logger.Warn("failed to write pid file", "error", err)
	}
	defer os.Remove(filepath.Join(statePath, ".daemon", "pid"))

	if err := d.Start(runCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	providers.Logger.Info("signetd started", "addr", addr)

	<-runCtx.Done()

	providers.Logger.Info("signetd shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	return d.Stop(shutdownCtx)
}

func resolvePort() string {
	if p := os.Getenv("SIGNET_PORT"); p != "" {
		return p
	}

	return defaultPort
}

// openDailyLogFile opens today's .daemon/logs/signet-YYYY-MM-DD.log for
// append, creating it if absent. A fresh file starts whenever the daemon is
// restarted on a new calendar day; signetd does not rotate mid-run.
func openDailyLogFile(statePath string) (*os.File, error) {
	name := fmt.Sprintf("signet-%s.log", time.Now().Format("2006-01-02"))
	path := filepath.Join(statePath, ".daemon", "logs", name)

	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func writePIDFile(statePath string) error {
	dir := filepath.Join(statePath, ".daemon")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "pid"), []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}

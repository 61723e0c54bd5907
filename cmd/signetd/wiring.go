package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/signet-run/signet/internal/capture"
	"github.com/signet-run/signet/internal/config"
	"github.com/signet-run/signet/internal/memory"
	"github.com/signet-run/signet/internal/refiner"
)

// buildCaptureManager translates config's per-adapter sections (each with
// its own Enabled flag and retention window) into internal/capture's
// native adapter configs, constructing only the adapters the manifest
// turns on. A platform backend that fails to resolve (no local tool
// found, unsupported OS) disables its adapter with a warning rather than
// failing daemon startup, per spec.md §4.5's non-fatal capture policy.
func buildCaptureManager(cfg *config.Config, logger *slog.Logger) *capture.CaptureManager {
	var (
		screen   *capture.ScreenAdapter
		files    *capture.FilesAdapter
		terminal *capture.TerminalAdapter
		comms    *capture.CommsAdapter
		voice    *capture.VoiceAdapter
	)

	if cfg.Perception.Screen.Enabled {
		screen = buildScreenAdapter(cfg.Perception.Screen, logger)
	}

	if cfg.Perception.Files.Enabled {
		files = capture.NewFilesAdapter(capture.FilesConfig{
			WatchDirs:       cfg.Perception.Files.WatchDirs,
			ExcludePatterns: cfg.Perception.Files.ExcludePatterns,
		}, capture.NewGitResolver(), logger)
	}

	if cfg.Perception.Terminal.Enabled {
		terminal = capture.NewTerminalAdapter(capture.TerminalConfig{
			ExcludeCommands: cfg.Perception.Terminal.ExcludeCommands,
		}, logger)
	}

	if cfg.Perception.Comms.Enabled {
		comms = capture.NewCommsAdapter(capture.CommsConfig{
			Repos: cfg.Perception.Comms.GitRepos,
		}, capture.NewGitResolver(), logger)
	}

	if cfg.Perception.Voice.Enabled {
		voice = buildVoiceAdapter(cfg.Perception.Voice, logger)
	}

	retention := capture.RetentionConfig{
		ScreenDays:   cfg.Perception.Screen.RetentionDays,
		FilesDays:    cfg.Perception.Files.RetentionDays,
		TerminalDays: cfg.Perception.Terminal.RetentionDays,
		CommsDays:    cfg.Perception.Comms.RetentionDays,
		VoiceDays:    cfg.Perception.Voice.RetentionDays,
	}

	return capture.NewCaptureManager(retention, logger, screen, files, terminal, comms, voice)
}

func buildScreenAdapter(cfg config.ScreenConfig, logger *slog.Logger) *capture.ScreenAdapter {
	backend, err := capture.NewScreenBackend()
	if err != nil {
		logger.Warn("capture.screen disabled: no platform backend available", "error", err)
		return nil
	}

	return capture.NewScreenAdapter(capture.ScreenConfig{
		IntervalSeconds: cfg.IntervalSeconds,
		ExcludeApps:     cfg.ExcludeApps,
		ExcludeWindows:  cfg.ExcludeWindows,
	}, backend, logger)
}

func buildVoiceAdapter(cfg config.VoiceConfig, logger *slog.Logger) *capture.VoiceAdapter {
	recorder, err := capture.NewFFmpegRecorder()
	if err != nil {
		logger.Warn("capture.voice disabled: ffmpeg not found", "error", err)
		return nil
	}

	vad, err := capture.NewFFmpegVAD()
	if err != nil {
		logger.Warn("capture.voice disabled: ffmpeg not found", "error", err)
		return nil
	}

	transcriber, err := capture.NewWhisperTranscriber(cfg.Model)
	if err != nil {
		logger.Warn("capture.voice disabled: no whisper binary found", "error", err)
		return nil
	}

	tempDir := filepath.Join(os.TempDir(), "signet-voice")

	return capture.NewVoiceAdapter(capture.VoiceConfig{
		VADThreshold:   cfg.VADThreshold,
		RedactKeywords: cfg.ExcludeKeywords,
	}, recorder, vad, transcriber, logger, tempDir)
}

// buildEmbeddingProvider resolves the configured embedding backend. Only
// the "ollama" provider is constructed here; "openai", "none" and any
// other value yield nil, and recall then runs keyword-only. ollamaURL
// comes from perception.ollamaUrl: the manifest has one inference
// endpoint shared by the refiner LLM calls and the embedding provider.
func buildEmbeddingProvider(cfg config.EmbeddingConfig, ollamaURL string) memory.EmbeddingProvider {
	switch cfg.Provider {
	case config.EmbeddingProviderOllama:
		return memory.NewOllamaEmbeddingProvider(ollamaURL, cfg.Model)
	case config.EmbeddingProviderOpenAI, config.EmbeddingProviderNone:
		return nil
	default:
		return nil
	}
}

// buildRefiners returns every extractor in the order the scheduler runs
// them each cycle. Which refiners force-run on a detected project switch
// is decided by refiner name, not by position in this list.
func buildRefiners() []refiner.Refiner {
	return []refiner.Refiner{
		refiner.NewSkillRefiner(),
		refiner.NewProjectRefiner(),
		refiner.NewDecisionRefiner(),
		refiner.NewWorkflowRefiner(),
		refiner.NewContextRefiner(),
		refiner.NewPatternRefiner(),
	}
}

// memoryDatabasePath resolves the configured database file under the
// daemon's state directory.
func memoryDatabasePath(statePath string, cfg config.MemoryConfig) string {
	if filepath.IsAbs(cfg.Database) {
		return cfg.Database
	}

	return filepath.Join(statePath, cfg.Database)
}

// ensureStateDirs creates the daemon's on-disk layout: the state root
// itself and .daemon/logs, per spec.md's daemon state contract.
func ensureStateDirs(statePath string) error {
	if err := os.MkdirAll(statePath, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(statePath, ".daemon", "logs"), 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}

	return nil
}

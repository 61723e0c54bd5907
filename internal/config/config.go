// Package config loads and validates signet's agent.yaml manifest.
package config

import "errors"

// Config is the top-level configuration struct for signetd, unmarshalled
// from agent.yaml. Field tags use mapstructure for viper unmarshalling and
// yaml for Save's direct yaml.v3 marshalling; the two tag sets are kept
// identical so a saved file round-trips through LoadConfig unchanged.
type Config struct {
	Version    int              `mapstructure:"version" yaml:"version"`
	Schema     string           `mapstructure:"schema" yaml:"schema"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent"`
	Harnesses  []string         `mapstructure:"harnesses" yaml:"harnesses"`
	Memory     MemoryConfig     `mapstructure:"memory" yaml:"memory"`
	Search     SearchConfig     `mapstructure:"search" yaml:"search"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding" yaml:"embedding"`
	Perception PerceptionConfig `mapstructure:"perception" yaml:"perception"`
}

// AgentConfig identifies the agent this manifest belongs to.
type AgentConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Description string `mapstructure:"description" yaml:"description"`
	Created     string `mapstructure:"created" yaml:"created"`
	Updated     string `mapstructure:"updated" yaml:"updated"`
}

// MemoryConfig controls the memory store's disk footprint and decay model.
type MemoryConfig struct {
	Database      string  `mapstructure:"database" yaml:"database"`
	SessionBudget int     `mapstructure:"session_budget" yaml:"session_budget"`
	DecayRate     float64 `mapstructure:"decay_rate" yaml:"decay_rate"`
}

// SearchConfig controls hybrid recall blending and result shape.
type SearchConfig struct {
	Alpha    float64 `mapstructure:"alpha" yaml:"alpha"`
	TopK     int     `mapstructure:"top_k" yaml:"top_k"`
	MinScore float64 `mapstructure:"min_score" yaml:"min_score"`
}

// EmbeddingProvider selects which embedding backend the memory store talks to.
type EmbeddingProvider string

const (
	EmbeddingProviderOllama EmbeddingProvider = "ollama"
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
	EmbeddingProviderNone   EmbeddingProvider = "none"
)

// EmbeddingConfig selects and sizes the embedding provider. Immutable after
// the memory store opens: changing dimensions mid-lifetime would orphan the
// vec_embeddings table's declared dimension.
type EmbeddingConfig struct {
	Provider   EmbeddingProvider `mapstructure:"provider" yaml:"provider"`
	Model      string            `mapstructure:"model" yaml:"model"`
	Dimensions int               `mapstructure:"dimensions" yaml:"dimensions"`
}

// PerceptionConfig configures every capture adapter plus the refiner
// scheduler's cadence and inference endpoint.
type PerceptionConfig struct {
	Screen                 ScreenConfig   `mapstructure:"screen" yaml:"screen"`
	Files                  FilesConfig    `mapstructure:"files" yaml:"files"`
	Terminal               TerminalConfig `mapstructure:"terminal" yaml:"terminal"`
	Comms                  CommsConfig    `mapstructure:"comms" yaml:"comms"`
	Voice                  VoiceConfig    `mapstructure:"voice" yaml:"voice"`
	RefinerIntervalMinutes int            `mapstructure:"refinerIntervalMinutes" yaml:"refinerIntervalMinutes"`
	OllamaURL              string         `mapstructure:"ollamaUrl" yaml:"ollamaUrl"`
	RefinerModel           string         `mapstructure:"refinerModel" yaml:"refinerModel"`
}

// ScreenConfig configures the screen/OCR adapter.
type ScreenConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	IntervalSeconds int      `mapstructure:"intervalSeconds" yaml:"intervalSeconds"`
	ExcludeApps     []string `mapstructure:"excludeApps" yaml:"excludeApps"`
	ExcludeWindows  []string `mapstructure:"excludeWindows" yaml:"excludeWindows"`
	RetentionDays   int      `mapstructure:"retentionDays" yaml:"retentionDays"`
}

// FilesConfig configures the filesystem watch adapter.
type FilesConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	WatchDirs       []string `mapstructure:"watchDirs" yaml:"watchDirs"`
	ExcludePatterns []string `mapstructure:"excludePatterns" yaml:"excludePatterns"`
	RetentionDays   int      `mapstructure:"retentionDays" yaml:"retentionDays"`
}

// TerminalConfig configures the shell-history adapter.
type TerminalConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	ExcludeCommands []string `mapstructure:"excludeCommands" yaml:"excludeCommands"`
	RetentionDays   int      `mapstructure:"retentionDays" yaml:"retentionDays"`
}

// CommsConfig configures the git-commit adapter.
type CommsConfig struct {
	Enabled       bool     `mapstructure:"enabled" yaml:"enabled"`
	GitRepos      []string `mapstructure:"gitRepos" yaml:"gitRepos"`
	RetentionDays int      `mapstructure:"retentionDays" yaml:"retentionDays"`
}

// VoiceConfig configures the optional voice/VAD adapter.
type VoiceConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	Model           string   `mapstructure:"model" yaml:"model"`
	VADThreshold    float64  `mapstructure:"vadThreshold" yaml:"vadThreshold"`
	ExcludeKeywords []string `mapstructure:"excludeKeywords" yaml:"excludeKeywords"`
	RetentionDays   int      `mapstructure:"retentionDays" yaml:"retentionDays"`
}

// Sentinel errors for configuration validation.
var (
	ErrInvalidSchema             = errors.New("schema must be \"signet/v1\"")
	ErrInvalidSearchAlpha        = errors.New("search.alpha must be between 0 and 1")
	ErrInvalidSearchMinScore     = errors.New("search.min_score must be between 0 and 1")
	ErrInvalidSearchTopK         = errors.New("search.top_k must be positive")
	ErrInvalidEmbeddingProvider  = errors.New("embedding.provider must be one of ollama, openai, none")
	ErrInvalidEmbeddingDimension = errors.New("embedding.dimensions must be positive when provider is not none")
	ErrInvalidRefinerInterval    = errors.New("perception.refinerIntervalMinutes must be positive")
	ErrInvalidScreenInterval     = errors.New("perception.screen.intervalSeconds must be positive")
	ErrInvalidVADThreshold       = errors.New("perception.voice.vadThreshold must be between 0 and 1")
	ErrInvalidRetentionDays      = errors.New("retentionDays must be non-negative")
)

const unitInterval = 1.0

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if c.Schema != "" && c.Schema != "signet/v1" {
		return ErrInvalidSchema
	}

	if err := c.validateSearch(); err != nil {
		return err
	}

	if err := c.validateEmbedding(); err != nil {
		return err
	}

	return c.validatePerception()
}

func (c *Config) validateSearch() error {
	if c.Search.Alpha < 0 || c.Search.Alpha > unitInterval {
		return ErrInvalidSearchAlpha
	}

	if c.Search.MinScore < 0 || c.Search.MinScore > unitInterval {
		return ErrInvalidSearchMinScore
	}

	if c.Search.TopK <= 0 {
		return ErrInvalidSearchTopK
	}

	return nil
}

func (c *Config) validateEmbedding() error {
	switch c.Embedding.Provider {
	case EmbeddingProviderOllama, EmbeddingProviderOpenAI, EmbeddingProviderNone:
	default:
		return ErrInvalidEmbeddingProvider
	}

	if c.Embedding.Provider != EmbeddingProviderNone && c.Embedding.Dimensions <= 0 {
		return ErrInvalidEmbeddingDimension
	}

	return nil
}

func (c *Config) validatePerception() error {
	if c.Perception.RefinerIntervalMinutes <= 0 {
		return ErrInvalidRefinerInterval
	}

	if c.Perception.Screen.Enabled && c.Perception.Screen.IntervalSeconds <= 0 {
		return ErrInvalidScreenInterval
	}

	if c.Perception.Voice.Enabled {
		if c.Perception.Voice.VADThreshold < 0 || c.Perception.Voice.VADThreshold > unitInterval {
			return ErrInvalidVADThreshold
		}
	}

	for _, days := range []int{
		c.Perception.Screen.RetentionDays,
		c.Perception.Files.RetentionDays,
		c.Perception.Terminal.RetentionDays,
		c.Perception.Comms.RetentionDays,
		c.Perception.Voice.RetentionDays,
	} {
		if days < 0 {
			return ErrInvalidRetentionDays
		}
	}

	return nil
}

package config

import "github.com/spf13/viper"

// Defaults applied before agent.yaml is unmarshalled over them, so any key
// the manifest omits still resolves to a sane value.
const (
	DefaultSchema = "signet/v1"

	DefaultMemoryDatabase      = "memory/memories.db"
	DefaultMemorySessionBudget = 4000
	DefaultMemoryDecayRate     = 0.05

	DefaultSearchAlpha    = 0.7
	DefaultSearchTopK     = 10
	DefaultSearchMinScore = 0.1

	DefaultEmbeddingProvider   = EmbeddingProviderOllama
	DefaultEmbeddingModel      = "nomic-embed-text"
	DefaultEmbeddingDimensions = 768

	DefaultScreenIntervalSeconds = 30
	DefaultScreenRetentionDays   = 30

	DefaultFilesRetentionDays = 30

	DefaultTerminalRetentionDays = 30

	DefaultCommsRetentionDays = 90

	DefaultVoiceModel         = "whisper-base"
	DefaultVoiceVADThreshold  = 0.5
	DefaultVoiceRetentionDays = 14

	DefaultRefinerIntervalMinutes = 20
	DefaultOllamaURL              = "http://localhost:11434"
	DefaultRefinerModel           = "llama3.1"
)

// applyDefaults seeds every agent.yaml key with its default before viper
// unmarshals the file and environment overrides on top.
func applyDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("schema", DefaultSchema)
	viperCfg.SetDefault("harnesses", []string{})

	viperCfg.SetDefault("memory.database", DefaultMemoryDatabase)
	viperCfg.SetDefault("memory.session_budget", DefaultMemorySessionBudget)
	viperCfg.SetDefault("memory.decay_rate", DefaultMemoryDecayRate)

	viperCfg.SetDefault("search.alpha", DefaultSearchAlpha)
	viperCfg.SetDefault("search.top_k", DefaultSearchTopK)
	viperCfg.SetDefault("search.min_score", DefaultSearchMinScore)

	viperCfg.SetDefault("embedding.provider", string(DefaultEmbeddingProvider))
	viperCfg.SetDefault("embedding.model", DefaultEmbeddingModel)
	viperCfg.SetDefault("embedding.dimensions", DefaultEmbeddingDimensions)

	viperCfg.SetDefault("perception.screen.intervalSeconds", DefaultScreenIntervalSeconds)
	viperCfg.SetDefault("perception.screen.retentionDays", DefaultScreenRetentionDays)
	viperCfg.SetDefault("perception.files.retentionDays", DefaultFilesRetentionDays)
	viperCfg.SetDefault("perception.terminal.retentionDays", DefaultTerminalRetentionDays)
	viperCfg.SetDefault("perception.comms.retentionDays", DefaultCommsRetentionDays)
	viperCfg.SetDefault("perception.voice.model", DefaultVoiceModel)
	viperCfg.SetDefault("perception.voice.vadThreshold", DefaultVoiceVADThreshold)
	viperCfg.SetDefault("perception.voice.retentionDays", DefaultVoiceRetentionDays)
	viperCfg.SetDefault("perception.refinerIntervalMinutes", DefaultRefinerIntervalMinutes)
	viperCfg.SetDefault("perception.ollamaUrl", DefaultOllamaURL)
	viperCfg.SetDefault("perception.refinerModel", DefaultRefinerModel)
}

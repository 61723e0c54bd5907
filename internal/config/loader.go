package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = "agent"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix for signet settings.
const envPrefix = "SIGNET"

// envKeySeparator is the nested key separator in environment variable names.
const envKeySeparator = "_"

// signetPathEnv names the directory holding agent.yaml and the daemon's
// on-disk state (memory.db, perception logs).
const signetPathEnv = "SIGNET_PATH"

// LoadConfig loads agent.yaml from configPath, falling back to
// $SIGNET_PATH/agent.yaml, then ./agent.yaml, then $HOME/.signet/agent.yaml.
// When no configPath is given and no file is found on the search path,
// defaults are used; an explicit configPath that does not exist is an
// error.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	applyDefaults(viperCfg)

	viperCfg.SetConfigType(configType)
	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", envKeySeparator))
	viperCfg.AutomaticEnv()

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)

		if signetPath := os.Getenv(signetPathEnv); signetPath != "" {
			viperCfg.AddConfigPath(signetPath)
		}

		viperCfg.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viperCfg.AddConfigPath(home + "/.signet")
		}
	}

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFound) {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal config: %w", unmarshalErr)
	}

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return &cfg, nil
}

// StatePath returns the directory signetd reads agent.yaml from and writes
// its runtime state (memory.db, logs) to. It defaults to
// $HOME/.signet when SIGNET_PATH is unset.
func StatePath() (string, error) {
	if signetPath := os.Getenv(signetPathEnv); signetPath != "" {
		return signetPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return home + "/.signet", nil
}

// Package config loads the pocketd configuration: a YAML file with
// environment-variable expansion, plus well-known environment overrides
// for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for pocketd.
type Config struct {
	Workspace string          `yaml:"workspace"`
	StateDir  string          `yaml:"state_dir"`
	Agent     AgentConfig     `yaml:"agent"`
	Providers ProvidersConfig `yaml:"providers"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Tools     ToolsConfig     `yaml:"tools"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	SystemPrompt  string  `yaml:"system_prompt"`
	MaxIterations int     `yaml:"max_iterations"`
	HistoryWindow int     `yaml:"history_window"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
}

// ProvidersConfig holds per-provider credentials and defaults.
type ProvidersConfig struct {
	Anthropic ProviderConfig `yaml:"anthropic"`
	OpenAI    ProviderConfig `yaml:"openai"`
}

// ProviderConfig configures one LLM provider.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// ChannelsConfig enables and configures channel adapters.
type ChannelsConfig struct {
	CLI      CLIConfig      `yaml:"cli"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// CLIConfig configures the terminal channel.
type CLIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

// ToolsConfig configures the default tool set.
type ToolsConfig struct {
	BraveAPIKey string `yaml:"brave_api_key"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the configuration from path. A missing file is not an
// error: defaults plus environment overrides apply. Path resolution
// order: explicit path, $POCKETD_CONFIG, ~/.pocketd/config.yaml.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("POCKETD_CONFIG")
	}
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".pocketd", "config.yaml")
		}
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Defaults only.
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides lets well-known environment variables fill secrets
// the file leaves empty.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Providers.OpenAI.APIKey == "" {
		cfg.Providers.OpenAI.APIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" && cfg.Channels.Telegram.BotToken == "" {
		cfg.Channels.Telegram.BotToken = v
	}
	if v := os.Getenv("BRAVE_API_KEY"); v != "" && cfg.Tools.BraveAPIKey == "" {
		cfg.Tools.BraveAPIKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Workspace == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Workspace = filepath.Join(home, "pocketd")
		} else {
			cfg.Workspace = "pocketd"
		}
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.Workspace, ".pocketd")
	}
	if cfg.Agent.Provider == "" {
		cfg.Agent.Provider = "anthropic"
	}
	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.HistoryWindow == 0 {
		cfg.Agent.HistoryWindow = 50
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 4096
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// SessionsDir is where session history files live.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.StateDir, "sessions")
}

// MemoryPath is the fact log location.
func (c *Config) MemoryPath() string {
	return filepath.Join(c.StateDir, "memory.jsonl")
}

// JobsPath is the scheduler job document location.
func (c *Config) JobsPath() string {
	return filepath.Join(c.StateDir, "cron.json")
}

// Package config loads the announcer configuration from announcer.json,
// with environment variable overrides for secrets.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/user/wa-announcer/internal/paths"
)

// Config represents the merged announcer configuration
type Config struct {
	Log       LogConfig       `json:"log"`
	Database  DatabaseConfig  `json:"database"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	AI        AIConfig        `json:"ai"`
	API       APIConfig       `json:"api"`
	Broadcast BroadcastConfig `json:"broadcast"`
}

type LogConfig struct {
	Level      string `json:"level"` // "debug", "info", "warn", "error"
	ShowCaller bool   `json:"showCaller"`
}

type DatabaseConfig struct {
	Path string `json:"path"` // announcer data db (announcements, ledger, directory)
}

type WhatsAppConfig struct {
	SessionDBPath string `json:"sessionDbPath"` // whatsmeow device store
	CountryCode   string `json:"countryCode"`   // trunk-prefix replacement for phone normalization
	SyncSchedule  string `json:"syncSchedule"`  // cron spec for directory re-sync
}

type AIConfig struct {
	Provider       string `json:"provider"` // "openai" or "ollama"
	OpenAIAPIKey   string `json:"openaiApiKey"`
	OpenAIModel    string `json:"openaiModel"`
	OllamaURL      string `json:"ollamaUrl"`
	OllamaModel    string `json:"ollamaModel"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
	APIKey  string `json:"apiKey"` // static X-API-Key check; empty disables the check
}

type BroadcastConfig struct {
	DelayMs int `json:"delayMs"` // inter-send pacing during fan-out
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Log:      LogConfig{Level: "info"},
		WhatsApp: WhatsAppConfig{CountryCode: "62", SyncSchedule: "@every 5m"},
		AI: AIConfig{
			Provider:       "openai",
			OpenAIModel:    "gpt-4o-mini",
			OllamaURL:      "http://localhost:11434",
			OllamaModel:    "mistral",
			TimeoutSeconds: 60,
		},
		API:       APIConfig{Enabled: true, Listen: "127.0.0.1:3000"},
		Broadcast: BroadcastConfig{DelayMs: 500},
	}
}

// Load reads configuration from announcer.json (local dir first, then
// ~/.wa-announcer), applies defaults and environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	path, err := paths.ConfigPath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyPathDefaults()

	return cfg, nil
}

// applyEnv overrides secrets and provider settings from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.AI.OpenAIModel = v
	}
	if v := os.Getenv("OLLAMA_API_URL"); v != "" {
		c.AI.OllamaURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.AI.OllamaModel = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.API.APIKey = v
	}
}

// applyPathDefaults fills in data paths that depend on the home directory.
func (c *Config) applyPathDefaults() {
	if c.Database.Path == "" {
		if p, err := paths.DataPath("announcer.db"); err == nil {
			c.Database.Path = p
		}
	}
	if c.WhatsApp.SessionDBPath == "" {
		if p, err := paths.DataPath("whatsapp.db"); err == nil {
			c.WhatsApp.SessionDBPath = p
		}
	}
}

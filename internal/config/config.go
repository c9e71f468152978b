// Package config loads compass configuration from YAML with environment
// overrides, and watches the file for live changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/embedding"
)

// Config holds all compass configuration.
type Config struct {
	// User settings
	User UserConfig `yaml:"user"`

	// Model backends
	Providers []chat.Provider `yaml:"providers"`

	// Default model selection, "<provider-id>/<model-id>"
	DefaultModel string `yaml:"default_model"`

	// Embedding backend for semantic search
	Embedding embedding.Config `yaml:"embedding"`

	// Web search
	Search SearchConfig `yaml:"search"`

	// Streaming
	Stream StreamConfig `yaml:"stream"`

	// Storage
	DatabasePath string `yaml:"database_path"`

	// Logging
	Debug bool `yaml:"debug"`
}

// UserConfig holds per-user settings consumed by the template stage.
type UserConfig struct {
	Name string `yaml:"name"`
}

// SearchConfig configures the webSearch stage.
type SearchConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// StreamConfig configures the stream consumer.
type StreamConfig struct {
	// UpdateDelay is the pause between applied fragments, a backpressure
	// knob for renderers with an update debounce. "0s" disables it.
	UpdateDelay string `yaml:"update_delay"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		User: UserConfig{Name: "User"},
		Providers: []chat.Provider{
			{
				ID:       "ollama",
				Name:     "Ollama",
				Kind:     "openai",
				Endpoint: "http://localhost:11434",
			},
		},
		Embedding:    embedding.DefaultConfig(),
		Stream:       StreamConfig{UpdateDelay: "100ms"},
		DatabasePath: "data/compass.db",
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "compass.yaml"
	}
	return filepath.Join(home, ".compass", "config.yaml")
}

// Load reads configuration from a YAML file, falling back to defaults
// when the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if name := os.Getenv("COMPASS_USER_NAME"); name != "" {
		c.User.Name = name
	}
	if path := os.Getenv("COMPASS_DB"); path != "" {
		c.DatabasePath = path
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.setProviderKey("openai", key)
	}
	if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
		c.setProviderKey("mistral", key)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.setProviderKey("gemini", key)
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if key := os.Getenv("SEARCH_API_KEY"); key != "" {
		c.Search.APIKey = key
	}
}

// setProviderKey fills the API key of the named provider when configured
// without one.
func (c *Config) setProviderKey(id, key string) {
	for i := range c.Providers {
		if c.Providers[i].ID == id && c.Providers[i].APIKey == "" {
			c.Providers[i].APIKey = key
		}
	}
}

// UpdateDelay returns the stream update delay as a duration. An
// explicit "0s" disables pacing, reported as a negative sentinel so the
// consumer does not fall back to its own default.
func (c *Config) UpdateDelay() time.Duration {
	d, err := time.ParseDuration(c.Stream.UpdateDelay)
	if err != nil || d < 0 {
		return 100 * time.Millisecond
	}
	if d == 0 {
		return -1
	}
	return d
}

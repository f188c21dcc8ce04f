// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Paths
	KnowledgeBase string `json:"knowledge_base,omitempty"` // Path to knowledge base JSON file
	EscalationLog string `json:"escalation_log,omitempty"` // Path to escalation CSV log

	// Services
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL (optional)

	// Server
	Port      int    `json:"port,omitempty"`       // HTTP server port
	JWTSecret string `json:"jwt_secret,omitempty"` // HS256 secret enabling bearer auth

	// Behavior
	Concurrency int  `json:"concurrency,omitempty"` // Concurrent tickets in batch mode
	Verbose     bool `json:"verbose,omitempty"`     // Print detailed debug information
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Required fields are handled by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.Concurrency < 0 {
		return fmt.Errorf("config error: 'concurrency' must be non-negative")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be a valid TCP port")
	}

	if c.KnowledgeBase != "" {
		if _, err := os.Stat(c.KnowledgeBase); os.IsNotExist(err) {
			return fmt.Errorf("config error: knowledge base file not found: %s", c.KnowledgeBase)
		}
	}

	return nil
}

// MergeWithDefaults returns a copy of c with zero-valued fields replaced by
// the corresponding values from defaults.
func (c Config) MergeWithDefaults(defaults Config) Config {
	if c.KnowledgeBase == "" {
		c.KnowledgeBase = defaults.KnowledgeBase
	}
	if c.EscalationLog == "" {
		c.EscalationLog = defaults.EscalationLog
	}
	if c.APIKey == "" {
		c.APIKey = defaults.APIKey
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = defaults.DatabaseURL
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	if c.JWTSecret == "" {
		c.JWTSecret = defaults.JWTSecret
	}
	if c.Concurrency == 0 {
		c.Concurrency = defaults.Concurrency
	}
	return c
}

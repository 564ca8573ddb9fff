package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Instantly InstantlyConfig `yaml:"instantly"`
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	Sync      SyncConfig      `yaml:"sync"`
	Sending   SendingConfig   `yaml:"sending"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstantlyConfig contains sending-platform API settings
type InstantlyConfig struct {
	APIKey             string        `yaml:"api_key"` // Falls back to INSTANTLY_API_KEY
	BaseURL            string        `yaml:"base_url"`
	MaxRetries         int           `yaml:"max_retries"`
	MinRequestInterval time.Duration `yaml:"min_request_interval"`
}

// LLMConfig contains copy-generation model settings
type LLMConfig struct {
	APIKey    string `yaml:"api_key"` // Falls back to LLM_API_KEY
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// StorageConfig contains local database paths
type StorageConfig struct {
	TestsPath string `yaml:"tests_path"` // SQLite database for experiments
	SyncPath  string `yaml:"sync_path"`  // BoltDB file for sync checkpoints
}

// SyncConfig contains engagement sync settings
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"` // 0 disables the background loop
}

// SendingConfig contains per-account sending constraints
type SendingConfig struct {
	DailyLimitPerAccount int `yaml:"daily_limit_per_account"`
	MinWarmupDays        int `yaml:"min_warmup_days"`
}

// APIConfig contains the reporting HTTP server settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // Default: :9090
	Path       string `yaml:"path"`        // Default: /metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Instantly.APIKey == "" {
		c.Instantly.APIKey = os.Getenv("INSTANTLY_API_KEY")
	}
	if c.Instantly.MaxRetries == 0 {
		c.Instantly.MaxRetries = 3
	}
	if c.Instantly.MinRequestInterval == 0 {
		c.Instantly.MinRequestInterval = 200 * time.Millisecond
	}

	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-20250514"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}

	if c.Storage.TestsPath == "" {
		c.Storage.TestsPath = "/var/lib/outreach/tests.db"
	}
	if c.Storage.SyncPath == "" {
		c.Storage.SyncPath = "/var/lib/outreach/sync.db"
	}

	if c.Sync.Interval == 0 {
		c.Sync.Interval = 15 * time.Minute
	}

	if c.Sending.DailyLimitPerAccount == 0 {
		c.Sending.DailyLimitPerAccount = 50
	}
	if c.Sending.MinWarmupDays == 0 {
		c.Sending.MinWarmupDays = 14
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Instantly.APIKey == "" {
		return fmt.Errorf("instantly.api_key is required (or set INSTANTLY_API_KEY)")
	}

	if c.Instantly.MaxRetries < 1 {
		return fmt.Errorf("instantly.max_retries must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must not be negative")
	}

	return nil
}

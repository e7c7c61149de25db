// Package config manages the sync core configuration file.
// It handles loading, saving, and defaulting of sync settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	// ConfigFile is the configuration file name inside the data directory.
	ConfigFile = "sync.toml"
	// DatabaseFile is the local mirror database file name.
	DatabaseFile = "eventra.db"
)

// Config represents the sync core configuration.
type Config struct {
	RemoteBaseURL   string `toml:"remote_base_url"`
	RemoteAPIKey    string `toml:"remote_api_key"`
	StorageBucket   string `toml:"storage_bucket"`
	ReachabilityURL string `toml:"reachability_url"`

	SyncIntervalSeconds   int `toml:"sync_interval_seconds"`
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`
	MaxRetries            int `toml:"max_retries"`
	PullLimit             int `toml:"pull_limit"`
	QueueMaxSize          int `toml:"queue_max_size"`

	path string // data directory this config was loaded from
}

// Default returns a Config with default settings.
func Default() *Config {
	return &Config{
		StorageBucket:         "event-photos",
		SyncIntervalSeconds:   30,
		RequestTimeoutSeconds: 15,
		MaxRetries:            5,
		PullLimit:             200,
		QueueMaxSize:          1000,
	}
}

// Load loads the configuration from dataDir, applying defaults for any
// unset numeric fields.
func Load(dataDir string) (*Config, error) {
	configPath := filepath.Join(dataDir, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = dataDir
	cfg.applyDefaults()
	return cfg, nil
}

// Save saves the configuration to disk.
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0644)
}

// Initialize writes a fresh configuration into dataDir, creating the
// directory if needed.
func Initialize(dataDir, remoteBaseURL, apiKey string) (*Config, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := Default()
	cfg.RemoteBaseURL = remoteBaseURL
	cfg.RemoteAPIKey = apiKey
	cfg.ReachabilityURL = remoteBaseURL
	cfg.path = dataDir

	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DataDir returns the data directory this config belongs to.
func (c *Config) DataDir() string {
	return c.path
}

// DatabasePath returns the path to the local mirror database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.path, DatabaseFile)
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.SyncIntervalSeconds <= 0 {
		c.SyncIntervalSeconds = d.SyncIntervalSeconds
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = d.RequestTimeoutSeconds
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.PullLimit <= 0 {
		c.PullLimit = d.PullLimit
	}
	if c.QueueMaxSize <= 0 {
		c.QueueMaxSize = d.QueueMaxSize
	}
	if c.StorageBucket == "" {
		c.StorageBucket = d.StorageBucket
	}
	if c.ReachabilityURL == "" {
		c.ReachabilityURL = c.RemoteBaseURL
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"mayanetra/internal/history"
	"mayanetra/internal/storage"
	"mayanetra/internal/theme"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Predictor struct {
		URL            string `yaml:"url"`
		Path           string `yaml:"path"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"predictor"`

	Storage storage.Config `yaml:"storage"`

	History struct {
		Key        string `yaml:"key"`
		MaxEntries *int   `yaml:"max_entries"` // nil means default, 0 means unbounded
	} `yaml:"history"`

	Theme struct {
		Key string `yaml:"key"`
	} `yaml:"theme"`

	Notices struct {
		TTLMillis int `yaml:"ttl_ms"`
	} `yaml:"notices"`
}

// PredictorTimeout returns the classifier request timeout
func (c *Config) PredictorTimeout() time.Duration {
	return time.Duration(c.Predictor.TimeoutSeconds) * time.Second
}

// NoticeTTL returns how long notices stay visible
func (c *Config) NoticeTTL() time.Duration {
	return time.Duration(c.Notices.TTLMillis) * time.Millisecond
}

// HistoryCap returns the configured history cap
func (c *Config) HistoryCap() int {
	if c.History.MaxEntries == nil {
		return history.DefaultMaxEntries
	}
	return *c.History.MaxEntries
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	// Expand environment variables in endpoints and secrets
	config.Predictor.URL = os.ExpandEnv(config.Predictor.URL)
	config.Storage.URL = os.ExpandEnv(config.Storage.URL)
	config.Storage.Redis.Password = os.ExpandEnv(config.Storage.Redis.Password)

	// Set defaults
	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}

	if config.Predictor.URL == "" {
		config.Predictor.URL = "http://localhost:5000"
	}

	if config.Predictor.TimeoutSeconds == 0 {
		config.Predictor.TimeoutSeconds = 30
	}

	if config.Storage.Driver == "" {
		config.Storage.Driver = storage.DriverSQLite
	}

	if config.Storage.Path == "" {
		config.Storage.Path = "./data/mayanetra.db"
	}

	if config.Storage.Redis.KeyPrefix == "" {
		config.Storage.Redis.KeyPrefix = "mayanetra:"
	}

	if config.History.Key == "" {
		config.History.Key = history.DefaultKey
	}

	if config.Theme.Key == "" {
		config.Theme.Key = theme.DefaultKey
	}

	if config.Notices.TTLMillis == 0 {
		config.Notices.TTLMillis = 1800
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverMemory:
	case storage.DriverPostgres:
		if c.Storage.URL == "" {
			return fmt.Errorf("storage.url is required for the postgres driver")
		}
	case storage.DriverRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}

	if c.History.MaxEntries != nil && *c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative")
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key/value store shared by the whole process
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Driver names accepted in Config.Driver
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config selects and configures a storage backend
type Config struct {
	Driver string `yaml:"driver"` // sqlite, postgres, redis or memory
	Path   string `yaml:"path"`   // SQLite file path
	URL    string `yaml:"url"`    // PostgreSQL DSN

	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
}

// Open builds the backend named by cfg.Driver
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLiteStore(cfg.Path, logger)
	case DriverPostgres:
		return NewPostgresStore(cfg.URL, logger)
	case DriverRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, logger)
	case DriverMemory:
		logger.Warn("Using in-memory storage, nothing survives a restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

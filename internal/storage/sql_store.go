package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLStore keeps values in a single kv_items table.
// The same queries serve SQLite and PostgreSQL; placeholders are rebound per driver.
type SQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and creates if needed) a SQLite database file
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get database instance for migrations: %w", err)
	}

	store := &SQLStore{db: db, logger: logger}
	if err := store.migrate(driver, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite store initialized", zap.String("db_path", path))
	return store, nil
}

// NewPostgresStore connects to PostgreSQL and runs migrations
func NewPostgresStore(dataSourceName string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to get database instance for migrations: %w", err)
	}

	store := &SQLStore{db: db, logger: logger}
	if err := store.migrate(driver, "postgres"); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("PostgreSQL store initialized")
	return store, nil
}

func (s *SQLStore) migrate(driver database.Driver, name string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	s.logger.Debug("Storage migrations applied", zap.String("driver", name))
	return nil
}

// Get returns the value stored under key
func (s *SQLStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	query := s.db.Rebind(`SELECT item_value FROM kv_items WHERE item_key = ?`)
	err := s.db.GetContext(ctx, &value, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, nil
}

// Set inserts or replaces the value under key
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	query := s.db.Rebind(`
		INSERT INTO kv_items (item_key, item_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (item_key) DO UPDATE
		SET item_value = excluded.item_value, updated_at = excluded.updated_at
	`)
	if _, err := s.db.ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := s.db.Rebind(`DELETE FROM kv_items WHERE item_key = ?`)
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

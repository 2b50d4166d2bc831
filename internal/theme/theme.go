package theme

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mayanetra/internal/models"
	"mayanetra/internal/storage"

	"go.uber.org/zap"
)

// DefaultKey is the storage key of the theme preference
const DefaultKey = "mayanetra-theme"

// Preference is the process-wide theme setting
type Preference struct {
	mu      sync.RWMutex
	store   storage.Store
	key     string
	current models.Theme
	logger  *zap.Logger
}

// NewPreference starts at the default theme until Load is called
func NewPreference(store storage.Store, key string, logger *zap.Logger) *Preference {
	if key == "" {
		key = DefaultKey
	}
	return &Preference{
		store:   store,
		key:     key,
		current: models.DefaultTheme,
		logger:  logger,
	}
}

// Load reads the stored theme, falling back to dark when unset or invalid
func (p *Preference) Load(ctx context.Context) models.Theme {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = models.DefaultTheme

	raw, err := p.store.Get(ctx, p.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("Failed to read theme, using default", zap.Error(err))
		}
		return p.current
	}

	t, err := models.ParseTheme(raw)
	if err != nil {
		p.logger.Warn("Stored theme is invalid, using default", zap.String("value", raw))
		return p.current
	}

	p.current = t
	return p.current
}

// Get returns the active theme
func (p *Preference) Get() models.Theme {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Set activates t and persists it. The active value changes even if the write fails.
func (p *Preference) Set(ctx context.Context, t models.Theme) error {
	t, err := models.ParseTheme(string(t))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = t
	if err := p.store.Set(ctx, p.key, string(t)); err != nil {
		p.logger.Warn("Failed to persist theme", zap.String("theme", string(t)), zap.Error(err))
		return fmt.Errorf("failed to persist theme: %w", err)
	}
	return nil
}

// Toggle switches between dark and light and returns the new value
func (p *Preference) Toggle(ctx context.Context) (models.Theme, error) {
	next := p.Get().Opposite()
	return next, p.Set(ctx, next)
}

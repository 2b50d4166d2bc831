package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"mayanetra/internal/models"
	"mayanetra/internal/storage"

	"go.uber.org/zap"
)

const (
	// DefaultKey is the storage key the serialized log lives under
	DefaultKey = "mayanetra-history"

	// DefaultMaxEntries caps the log; the oldest entries are evicted first
	DefaultMaxEntries = 500

	// PreviewLength is the number of runes shown per entry in listings
	PreviewLength = 80
)

// ErrNotPersisted means the in-memory log changed but the store write failed
var ErrNotPersisted = errors.New("history change not persisted")

// Log is the ordered record of saved interactions.
// Entries are kept in insertion order; the serialized form in the store is authoritative across restarts.
type Log struct {
	mu         sync.RWMutex
	store      storage.Store
	key        string
	maxEntries int
	entries    []models.HistoryEntry
	unread     bool // Load failed to read the store; merge before the next write
	logger     *zap.Logger
}

// NewLog creates an empty log. maxEntries <= 0 disables the cap.
func NewLog(store storage.Store, key string, maxEntries int, logger *zap.Logger) *Log {
	if key == "" {
		key = DefaultKey
	}
	return &Log{
		store:      store,
		key:        key,
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// Load replaces the in-memory log with the stored one.
// Missing or malformed data leaves an empty log.
func (l *Log) Load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.unread = false

	entries, err := l.read(ctx)
	if err != nil {
		l.unread = true
		l.logger.Warn("Failed to read history, starting empty", zap.Error(err))
		return
	}

	l.entries = entries
	l.logger.Debug("History loaded", zap.Int("entries", len(entries)))
}

// read returns the stored entries. A missing key or malformed data yields an empty log;
// only a failed store read is an error.
func (l *Log) read(ctx context.Context) ([]models.HistoryEntry, error) {
	raw, err := l.store.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		l.logger.Warn("Stored history is malformed, starting empty", zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

// mergeStored folds the stored log in front of entries added since a failed Load.
func (l *Log) mergeStored(ctx context.Context) error {
	stored, err := l.read(ctx)
	if err != nil {
		return err
	}
	l.entries = append(stored, l.entries...)
	l.unread = false
	l.logger.Info("Stored history recovered", zap.Int("stored", len(stored)))
	return nil
}

// Append adds entry at the end and persists the whole log.
// On a store failure the entry stays in memory and the returned error wraps ErrNotPersisted.
// While the stored log is still unread nothing is written, so it is never overwritten.
func (l *Log) Append(ctx context.Context, entry models.HistoryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if l.unread {
		if err := l.mergeStored(ctx); err != nil {
			l.logger.Warn("Stored history still unreadable, keeping entry in memory", zap.Error(err))
			return fmt.Errorf("%w: stored history unreadable: %w", ErrNotPersisted, err)
		}
	}

	if l.maxEntries > 0 && len(l.entries) > l.maxEntries {
		evicted := len(l.entries) - l.maxEntries
		l.entries = append([]models.HistoryEntry(nil), l.entries[evicted:]...)
		l.logger.Debug("History cap reached, evicted oldest entries", zap.Int("evicted", evicted))
	}

	return l.persist(ctx)
}

func (l *Log) persist(ctx context.Context) error {
	data, err := json.Marshal(l.entries)
	if err != nil {
		return fmt.Errorf("%w: failed to encode history: %w", ErrNotPersisted, err)
	}
	if err := l.store.Set(ctx, l.key, string(data)); err != nil {
		l.logger.Warn("Failed to persist history", zap.Int("entries", len(l.entries)), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	return nil
}

// List returns the entries most recent first. The stored order is untouched.
func (l *Log) List() []models.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.HistoryEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Len returns the number of entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the log in memory and in the store
func (l *Log) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.unread = false
	if err := l.store.Delete(ctx, l.key); err != nil {
		l.logger.Warn("Failed to delete stored history", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrNotPersisted, err)
	}
	return nil
}

// Preview shortens text for listings. Storage always keeps the full text.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	return string([]rune(text)[:PreviewLength]) + "…"
}

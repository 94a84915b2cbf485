// Package voicecache memoizes remote voice clone results. Cloning the
// same reference audio with the same model always yields an equivalent
// voice, so entries are keyed by a hash of the audio content plus the
// model identifier. Hits must still be revalidated against the remote
// service before use; voices expire or get deleted out-of-band.
package voicecache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"cicada/internal/logging"
)

// Entry is the cached result of one clone operation.
type Entry struct {
	VoiceID   string  `json:"voice_id"`
	ModelType string  `json:"model_type"`
	CreatedAt float64 `json:"created_at"`
}

// Item pairs an entry with its cache key for listings.
type Item struct {
	Key string
	Entry
}

// Key builds the cache key for a content hash and model identifier.
func Key(contentHash, model string) string {
	return fmt.Sprintf("%s_%s", contentHash, model)
}

// Cache provides thread-safe access to the voice clone cache. Writes
// from concurrent processes serialize through a sidecar lock file; the
// last writer wins.
type Cache struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewCache creates a cache backed by the JSON file at path. If path is
// empty the cache is disabled and all operations become no-ops. The
// file is created lazily on first Store.
func NewCache(path string, logger *slog.Logger) *Cache {
	c := &Cache{
		path:    path,
		logger:  logging.NewComponentLogger(logger, "voicecache"),
		entries: make(map[string]Entry),
		now:     time.Now,
	}

	if path == "" {
		return c
	}

	if err := c.load(); err != nil {
		c.logger.Warn("failed to load voice cache; starting empty",
			logging.String("path", path),
			logging.Error(err))
	}

	return c
}

// Lookup returns the entry for the given content hash and model.
func (c *Cache) Lookup(contentHash, model string) (Entry, bool) {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" || c.path == "" {
		return Entry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, found := c.entries[Key(contentHash, model)]
	return entry, found
}

// Store adds or replaces the entry for (contentHash, model) and
// persists the cache.
func (c *Cache) Store(contentHash, model, voiceID string) error {
	contentHash = strings.TrimSpace(contentHash)
	voiceID = strings.TrimSpace(voiceID)
	if contentHash == "" {
		return errors.New("content hash cannot be empty")
	}
	if voiceID == "" {
		return errors.New("voice id cannot be empty")
	}
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[Key(contentHash, model)] = Entry{
		VoiceID:   voiceID,
		ModelType: model,
		CreatedAt: float64(c.now().UnixMilli()) / 1000.0,
	}

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cached voice clone",
		logging.String("voice_id", voiceID),
		logging.String("model", model))

	return nil
}

// Remove deletes the entry for (contentHash, model) and persists the
// change. Used when the remote voice turns out expired, failed, or
// deleted.
func (c *Cache) Remove(contentHash, model string) error {
	contentHash = strings.TrimSpace(contentHash)
	if contentHash == "" {
		return errors.New("content hash cannot be empty")
	}
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(contentHash, model)
	if _, exists := c.entries[key]; !exists {
		return fmt.Errorf("voice cache entry %q not found", key)
	}

	delete(c.entries, key)

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("removed stale voice clone", logging.String("key", key))
	return nil
}

// List returns all entries sorted newest first.
func (c *Cache) List() []Item {
	if c.path == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	items := make([]Item, 0, len(c.entries))
	for key, entry := range c.entries {
		items = append(items, Item{Key: key, Entry: entry})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt > items[j].CreatedAt
	})

	return items
}

// Clear removes all entries and persists the empty cache.
func (c *Cache) Clear() error {
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cleared voice cache")
	return nil
}

// Count returns the number of cached voices.
func (c *Cache) Count() int {
	if c.path == "" {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read cache file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	entries := make(map[string]Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}

	for key := range entries {
		if strings.TrimSpace(key) == "" {
			delete(entries, key)
		}
	}
	c.entries = entries

	c.logger.Debug("loaded voice cache",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.path))

	return nil
}

// save writes the cache to disk atomically, holding a file lock so
// concurrent processes cannot tear each other's writes.
func (c *Cache) save() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	lock := flock.New(c.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock cache file: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

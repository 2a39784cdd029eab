// Package httpcache memoizes external service responses (reverse-geocode
// lookups, travel-text parses) in an otter-backed TTL cache with
// optional gob persistence, so repeated scans do not re-pay for identical
// calls.
package httpcache

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maypok86/otter/v2"
)

// Entry is one cached response payload.
type Entry struct {
	ExpiresAt time.Time
	Data      []byte
}

// Cache is a TTL-bounded response cache. When dir is set, entries are
// persisted to disk periodically and on Close.
type Cache struct {
	cache      otter.Cache[string, Entry]
	logger     *slog.Logger
	saveCancel context.CancelFunc
	dir        string
	saveWg     sync.WaitGroup
	ttl        time.Duration
	mu         sync.Mutex
}

const cacheFileName = "tripsift-cache.gob"

// New creates a disk-backed cache under dir, loading any previously saved
// entries and saving periodically until Close.
func New(ctx context.Context, dir string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	c := newCache(ttl, logger)
	c.dir = dir

	if err := c.loadFromDisk(); err != nil {
		logger.Warn("failed to load cache from disk", "error", err)
	}
	logger.Info("response cache initialized", "dir", dir, "entries", c.cache.EstimatedSize())

	c.startPeriodicSave(ctx)
	return c, nil
}

// NewMemory creates a memory-only cache with no persistence.
func NewMemory(ttl time.Duration, logger *slog.Logger) *Cache {
	return newCache(ttl, logger)
}

func newCache(ttl time.Duration, logger *slog.Logger) *Cache {
	cache := otter.Must(&otter.Options[string, Entry]{
		MaximumSize:      50_000,
		InitialCapacity:  1_000,
		ExpiryCalculator: otter.ExpiryWriting[string, Entry](ttl),
	})
	return &Cache{cache: *cache, ttl: ttl, logger: logger}
}

// Get returns the cached response for a GET URL.
func (c *Cache) Get(url string) ([]byte, bool) {
	return c.lookup(hashKey(url, nil))
}

// Set caches the response for a GET URL.
func (c *Cache) Set(url string, data []byte) error {
	c.put(hashKey(url, nil), data)
	return nil
}

// APICall returns the cached response for a keyed request payload, e.g. a
// parse prompt.
func (c *Cache) APICall(key string, requestBody []byte) ([]byte, bool) {
	return c.lookup(hashKey(key, requestBody))
}

// SetAPICall caches the response for a keyed request payload.
func (c *Cache) SetAPICall(key string, requestBody, data []byte) error {
	c.put(hashKey(key, requestBody), data)
	return nil
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	entry, found := c.cache.GetIfPresent(key)
	if !found {
		return nil, false
	}
	// otter expires on its own; the timestamp check guards entries loaded
	// from an old disk snapshot.
	if time.Now().After(entry.ExpiresAt) {
		c.cache.Invalidate(key)
		return nil, false
	}
	return entry.Data, true
}

func (c *Cache) put(key string, data []byte) {
	c.cache.Set(key, Entry{Data: data, ExpiresAt: time.Now().Add(c.ttl)})
}

func hashKey(key string, requestBody []byte) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write(requestBody)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) loadFromDisk() error {
	path := filepath.Join(c.dir, cacheFileName)

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			c.logger.Debug("failed to close cache file", "error", closeErr)
		}
	}()

	var entries map[string]Entry
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("decoding cache file: %w", err)
	}

	now := time.Now()
	valid := 0
	for key, entry := range entries {
		if now.Before(entry.ExpiresAt) {
			c.cache.Set(key, entry)
			valid++
		}
	}
	c.logger.Debug("loaded cache from disk", "path", path, "total", len(entries), "valid", valid)
	return nil
}

func (c *Cache) saveToDisk() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := filepath.Join(c.dir, cacheFileName)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer func() {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Debug("failed to remove temp file", "error", removeErr)
		}
	}()

	entries := make(map[string]Entry)
	now := time.Now()
	c.cache.All()(func(key string, entry Entry) bool {
		if now.Before(entry.ExpiresAt) {
			entries[key] = entry
		}
		return true
	})

	if err := gob.NewEncoder(file).Encode(entries); err != nil {
		return fmt.Errorf("encoding cache to file: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing cache file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}

	c.logger.Debug("cache saved to disk", "entries", len(entries), "path", path)
	return nil
}

func (c *Cache) startPeriodicSave(ctx context.Context) {
	saveCtx, cancel := context.WithCancel(ctx)
	c.saveCancel = cancel

	c.saveWg.Add(1)
	go func() {
		defer c.saveWg.Done()

		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-saveCtx.Done():
				return
			case <-ticker.C:
				if err := c.saveToDisk(); err != nil {
					c.logger.Error("periodic cache save failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the periodic saver and flushes the cache to disk. It is a
// no-op for memory-only caches.
func (c *Cache) Close() error {
	if c.saveCancel != nil {
		c.saveCancel()
	}
	c.saveWg.Wait()

	if c.dir == "" {
		return nil
	}
	if err := c.saveToDisk(); err != nil {
		c.logger.Error("final cache save failed", "error", err)
		return err
	}
	return nil
}

// Package suggest memoizes the result of a full trip-suggestion scan so the
// UI can reopen the wizard without re-running every geocode and parse call.
//
// The cache is a single most-recent-entry slot, not an LRU: one envelope
// lives under a fixed storage key, and writing a result for new scan options
// overwrites whatever was there. Reads hit only when the stored option key
// matches and the entry is no older than the TTL.
package suggest

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tripsift-dev/tripsift/pkg/kvstore"
)

// DefaultTTL is how long a cached scan result stays valid.
const DefaultTTL = 6 * time.Hour

// storageKey is the single slot the envelope lives under.
const storageKey = "tripsift.suggestions.v1"

// envelope wraps a cached payload with the option key it was computed for
// and the time it was saved.
type envelope struct {
	SavedAt time.Time       `json:"saved_at"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// Cache is the single-slot, TTL-bounded suggestion cache. Storage failures
// and corrupt entries degrade to cache misses; nothing propagates.
type Cache struct {
	store  kvstore.Store
	logger *slog.Logger
	now    func() time.Time
	ttl    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow injects a clock, letting tests simulate TTL expiry without
// sleeping.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns a cache over store with the given TTL. A zero ttl means
// DefaultTTL.
func New(store kvstore.Store, ttl time.Duration, logger *slog.Logger, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{store: store, ttl: ttl, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached payload for the given option key, or false when
// there is no valid entry: absent slot, mismatched key, expired entry, or
// unreadable storage. An entry aged exactly at the TTL boundary still hits.
func (c *Cache) Get(key string) ([]byte, bool) {
	raw, ok, err := c.store.GetItem(storageKey)
	if err != nil {
		c.logger.Warn("suggestion cache read failed, treating as miss", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		c.logger.Warn("suggestion cache entry corrupt, treating as miss", "error", err)
		return nil, false
	}
	if env.Key != key {
		c.logger.Debug("suggestion cache miss", "reason", "options changed")
		return nil, false
	}
	if age := c.now().Sub(env.SavedAt); age > c.ttl {
		c.logger.Debug("suggestion cache miss", "reason", "expired", "age", age)
		return nil, false
	}
	return env.Payload, true
}

// Set stores payload for the given option key, overwriting any prior entry
// regardless of its key. Write failures are logged and swallowed.
func (c *Cache) Set(key string, payload []byte) {
	env := envelope{Key: key, SavedAt: c.now(), Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn("suggestion cache encode failed, skipping write", "error", err)
		return
	}
	if err := c.store.SetItem(storageKey, string(raw)); err != nil {
		c.logger.Warn("suggestion cache write failed", "error", err)
	}
}

// Package cache memoizes successful model responses keyed by a content
// fingerprint. Process-wide, in-memory, not persisted across restarts.
package cache

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/salescoach/advisor/internal/domain"
)

// Entry is one cached response. Entries are stored and fetched atomically
// as a unit; the raw bytes are copied on put and get so callers can never
// observe a partially written value.
type Entry struct {
	Key       string
	Response  json.RawMessage
	Usage     domain.TokenUsage
	CreatedAt time.Time
}

// Cache is the response cache. The underlying expirable LRU serializes
// concurrent readers and writers; keys are content-derived, never
// identity-derived, so tenants sharing a key share only generic content.
type Cache struct {
	lru    *expirable.LRU[string, Entry]
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a response cache holding up to size entries, each expiring
// after ttl.
func New(size int, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		lru:    expirable.NewLRU[string, Entry](size, nil, ttl),
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the entry for key, or ok=false on a miss or an expired entry.
func (c *Cache) Get(key string) (Entry, bool) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return Entry{}, false
	}
	entry.Response = append(json.RawMessage(nil), entry.Response...)
	return entry, true
}

// Put stores a response. Best-effort: a failure to cache is logged and
// swallowed, never surfaced to the invocation.
func (c *Cache) Put(key string, response json.RawMessage, usage domain.TokenUsage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("response cache store failed",
				slog.Any("panic", r))
		}
	}()

	c.lru.Add(key, Entry{
		Key:       key,
		Response:  append(json.RawMessage(nil), response...),
		Usage:     usage,
		CreatedAt: time.Now(),
	})
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

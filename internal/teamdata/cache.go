package teamdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultTTL is how long cached lookups stay fresh.
const DefaultTTL = 24 * time.Hour

// Cache is a small file-backed cache with per-entry expiry, used for team
// and squad lookups that change rarely.
type Cache struct {
	mu   sync.Mutex
	path string
	ttl  time.Duration
	now  func() time.Time
}

type cacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewCache creates a cache at dir/teamdata_cache.json with the given TTL.
// A non-positive ttl falls back to DefaultTTL.
func NewCache(dir string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		path: filepath.Join(dir, "teamdata_cache.json"),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get unmarshals the cached value for key into out. It returns false when the
// key is missing or the entry has expired.
func (c *Cache) Get(key string, out any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return false, err
	}

	entry, ok := entries[key]
	if !ok {
		return false, nil
	}
	if c.now().Sub(entry.Timestamp) > c.ttl {
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, out); err != nil {
		return false, fmt.Errorf("decode cache entry %q: %w", key, err)
	}
	return true, nil
}

// Put stores value under key with the current timestamp.
func (c *Cache) Put(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	entries[key] = cacheEntry{Data: data, Timestamp: c.now()}

	return c.save(entries)
}

func (c *Cache) load() (map[string]cacheEntry, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return map[string]cacheEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	entries := map[string]cacheEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupt cache is not worth failing a session over.
		return map[string]cacheEntry{}, nil
	}
	return entries, nil
}

func (c *Cache) save(entries map[string]cacheEntry) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

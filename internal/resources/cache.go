package resources

import (
	"os"
	"path/filepath"
	"sync"
)

// Cache is a content-addressed, on-disk archive cache. Grounded on
// `pkg/persistence.DeviceStateStore`'s mutex-guarded load/save round
// trip, generalized from one fixed JSON document to many binary blobs
// keyed by content id.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// NewCache returns a Cache rooted at dir.
func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

// Get returns the cached blob for key, or (nil, false) if absent or
// corrupted. A corrupted entry is purged so the next Put overwrites it
// cleanly (spec §4.3: "Cache corruption auto-purges the bad entry and
// refetches").
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.pathFor(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	if !verifyChecksum(data) {
		_ = os.Remove(path)
		return nil, false
	}
	return stripChecksum(data), true
}

// Put stores blob under key, appending an integrity checksum.
func (c *Cache) Put(key string, blob []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.pathFor(key), appendChecksum(blob), 0o644)
}

// Purge removes the cached entry for key, if any.
func (c *Cache) Purge(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = os.Remove(c.pathFor(key))
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+".archive")
}

func sanitizeKey(key string) string {
	out := make([]rune, 0, len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

package ncbi

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type cachedEntry struct {
	Report      string `json:"report"`
	RetrievedAt int64  `json:"retrieved_at"`
}

// cache is a JSON file of BLAST reports keyed by query. An empty path keeps
// it in memory only. A ttl of zero never expires entries.
type cache struct {
	mu      sync.RWMutex
	path    string
	ttl     time.Duration
	entries map[string]cachedEntry
	loaded  bool
	now     func() time.Time
}

func newCache(path string, ttl time.Duration) *cache {
	return &cache{path: path, ttl: ttl, now: time.Now}
}

func (c *cache) load() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return
	}
	c.entries = make(map[string]cachedEntry)
	c.loaded = true
	if c.path == "" {
		return
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, &c.entries)
}

func (c *cache) save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	b, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o644)
}

func (c *cache) get(key string) (string, bool) {
	c.load()
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.ttl > 0 && c.now().Unix()-e.RetrievedAt > int64(c.ttl.Seconds()) {
		return "", false
	}
	return e.Report, true
}

func (c *cache) set(key, report string) {
	if key == "" || report == "" {
		return
	}
	c.load()
	c.mu.Lock()
	c.entries[key] = cachedEntry{Report: report, RetrievedAt: c.now().Unix()}
	c.mu.Unlock()
	_ = c.save()
}

package build

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint computes the content hash used as a cache key component.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CombineFingerprints folds a module's own fingerprint with its dependency
// fingerprints into a single transitive key. Dependency fingerprints are
// sorted first so the result is independent of discovery order.
func CombineFingerprints(own string, deps []string) string {
	sorted := make([]string, len(deps))
	copy(sorted, deps)
	sort.Strings(sorted)

	h := xxhash.New()
	h.WriteString(own)
	for _, d := range sorted {
		h.WriteString(d)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// CacheEntry is one cached compilation result
type CacheEntry struct {
	Path            string
	Fingerprint     string            // content hash combined with dependency fingerprints
	Artifact        []byte            // serialized bytecode
	DepFingerprints map[string]string // dependency path -> content hash
	CachedAt        time.Time
}

// Cache is the content-addressed build cache: source path to compiled
// artifact, keyed by content fingerprints. It is the only shared mutable
// state in a build; all operations are safe for concurrent use, and stores
// for a given key are serialized by the cache lock.
type Cache struct {
	cacheDir string
	entries  map[string]*CacheEntry
	mu       sync.RWMutex
}

// NewCache creates a build cache rooted at cacheDir, loading any persisted
// index.
func NewCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cache := &Cache{
		cacheDir: cacheDir,
		entries:  make(map[string]*CacheEntry),
	}

	// A missing or corrupt index is non-fatal; start cold.
	_ = cache.load()

	return cache, nil
}

// IsValid reports whether the entry for path can be reused: the stored
// fingerprint must match the source's current fingerprint and every
// recorded dependency fingerprint must match the current graph.
func (c *Cache) IsValid(path, fingerprint string, depFingerprints map[string]string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[path]
	if !ok || entry.Fingerprint != fingerprint {
		return false
	}
	if len(entry.DepFingerprints) != len(depFingerprints) {
		return false
	}
	for dep, fp := range entry.DepFingerprints {
		current, ok := depFingerprints[dep]
		if !ok || current != fp {
			return false
		}
	}
	return true
}

// Get returns the cached entry for a path.
func (c *Cache) Get(path string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[path]
	return entry, ok
}

// Store inserts a compiled artifact. Writers for the same key are
// serialized; deterministic compilation makes same-key stores idempotent.
func (c *Cache) Store(path, fingerprint string, artifact []byte, depFingerprints map[string]string) error {
	c.mu.Lock()
	deps := make(map[string]string, len(depFingerprints))
	for k, v := range depFingerprints {
		deps[k] = v
	}
	c.entries[path] = &CacheEntry{
		Path:            path,
		Fingerprint:     fingerprint,
		Artifact:        artifact,
		DepFingerprints: deps,
		CachedAt:        time.Now(),
	}
	c.mu.Unlock()

	return c.persist()
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Clear removes all entries and the on-disk index.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)

	if err := os.RemoveAll(c.cacheDir); err != nil {
		return fmt.Errorf("failed to clear cache directory: %w", err)
	}
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to recreate cache directory: %w", err)
	}
	return nil
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// load reads the persisted index.
func (c *Cache) load() error {
	indexPath := filepath.Join(c.cacheDir, "index.gob")

	file, err := os.Open(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache index: %w", err)
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&c.entries); err != nil {
		return fmt.Errorf("failed to decode cache index: %w", err)
	}
	return nil
}

// persist writes the index atomically via a temp file and rename.
func (c *Cache) persist() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	indexPath := filepath.Join(c.cacheDir, "index.gob")
	tmpPath := indexPath + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(c.entries); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode cache index: %w", err)
	}
	file.Close()

	if err := os.Rename(tmpPath, indexPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save cache index: %w", err)
	}
	return nil
}

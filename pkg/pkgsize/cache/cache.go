// Package cache stores analysis results for exact package versions.
//
// A published version never changes, so a result keyed by name, exact
// version and analysis options stays valid forever. Results live in a
// Badger store on disk with an LRU of decoded values in front.
package cache

import (
	"encoding/json"
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/logging"
	"github.com/jamesainslie/pkgsize/pkg/pkgsize/types"
)

var logger = logging.Get("cache")

// DefaultMemoryEntries is the LRU size when none is given.
const DefaultMemoryEntries = 256

// Cache provides result caching for pkgsize.
type Cache struct {
	store  *Store
	memory *lru.Cache[string, []byte]

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats describes cache usage.
type Stats struct {
	Entries       int   `json:"entries" yaml:"entries"`
	MemoryEntries int   `json:"memoryEntries" yaml:"memory_entries"`
	DiskBytes     int64 `json:"diskBytes" yaml:"disk_bytes"`
	Hits          int64 `json:"hits" yaml:"hits"`
	Misses        int64 `json:"misses" yaml:"misses"`
}

// Open opens or creates a cache at the given path. memoryEntries sizes
// the in-memory tier.
func Open(path string, memoryEntries int) (*Cache, error) {
	if memoryEntries <= 0 {
		memoryEntries = DefaultMemoryEntries
	}

	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}

	// Stale entries are unreadable, so a failed migration only costs disk.
	if removed, err := store.Migrate(); err != nil {
		logger.Warn("cache schema migration failed", "path", path, "error", err)
	} else if removed > 0 {
		logger.Info("removed entries from an older cache schema", "path", path, "removed", removed)
	}

	memory, err := lru.New[string, []byte](memoryEntries)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Cache{store: store, memory: memory}, nil
}

// Close closes the cache.
func (c *Cache) Close() error {
	return c.store.Close()
}

// GetStats returns the cached stats of name@version for the options digest.
func (c *Cache) GetStats(name, version, digest string) (*types.PackageStats, bool) {
	var stats types.PackageStats
	if !c.get(MakeKey(KindStats, name, version, digest), version, &stats) {
		return nil, false
	}
	return &stats, true
}

// PutStats caches stats. Results for versions that are not exact, and
// approximate results, are not stored.
func (c *Cache) PutStats(digest string, stats *types.PackageStats) error {
	if stats.IsApproximate() {
		return nil
	}
	return c.put(MakeKey(KindStats, stats.Name, stats.Version, digest), stats.Version, stats)
}

// GetExports returns cached export sizes.
func (c *Cache) GetExports(name, version, digest string) (*types.PackageExportSizes, bool) {
	var exports types.PackageExportSizes
	if !c.get(MakeKey(KindExports, name, version, digest), version, &exports) {
		return nil, false
	}
	return &exports, true
}

// PutExports caches export sizes.
func (c *Cache) PutExports(digest string, exports *types.PackageExportSizes) error {
	return c.put(MakeKey(KindExports, exports.Name, exports.Version, digest), exports.Version, exports)
}

func (c *Cache) get(key []byte, version string, into any) bool {
	if !Cacheable(version) {
		return false
	}

	data, ok := c.memory.Get(string(key))
	if !ok {
		var err error
		data, err = c.store.Get(key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				logger.Warn("cache read failed", "error", err)
			}
			c.misses.Add(1)
			return false
		}
		c.memory.Add(string(key), data)
	}

	if err := json.Unmarshal(data, into); err != nil {
		logger.Warn("dropping undecodable cache entry", "error", err)
		c.memory.Remove(string(key))
		_ = c.store.Delete(key)
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

func (c *Cache) put(key []byte, version string, value any) error {
	if !Cacheable(version) {
		logger.Debug("not caching inexact version", "version", version)
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.store.Put(key, data); err != nil {
		return err
	}
	c.memory.Add(string(key), data)
	return nil
}

// Clear removes every cached result and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	c.memory.Purge()
	return c.store.DeletePrefix(MakeKeyPrefix(""))
}

// Stats returns usage counters.
func (c *Cache) Stats() (Stats, error) {
	n, err := c.store.Count(MakeKeyPrefix(""))
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Entries:       n,
		MemoryEntries: c.memory.Len(),
		DiskBytes:     c.store.DiskSize(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
	}, nil
}

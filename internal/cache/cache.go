// Package cache is a content-addressed store of reflection results, one JSON
// file per fingerprint. Caching is an optimization: read failures delete the
// record and report a miss, write failures are swallowed.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"reflectd/internal/common/fsutil"
	"reflectd/pkg/types"
)

// Cache maps (entry content, entry date) fingerprints to previously computed
// reflection results with time-based expiry.
type Cache struct {
	dir     string
	enabled bool
	expiry  time.Duration
	log     zerolog.Logger

	// test hook; defaults to time.Now
	now func() time.Time
}

// New constructs a Cache rooted at dir. A disabled cache is a no-op for all
// operations.
func New(dir string, enabled bool, expiry time.Duration, log zerolog.Logger) *Cache {
	c := &Cache{dir: dir, enabled: enabled, expiry: expiry, log: log, now: time.Now}
	if enabled {
		if err := fsutil.EnsureDir(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("cache dir create failed; caching disabled")
			c.enabled = false
		}
	}
	return c
}

// Enabled reports whether the cache is active.
func (c *Cache) Enabled() bool { return c.enabled }

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Key returns the deterministic fingerprint for content and an optional
// entry date.
func Key(content, entryDate string) string {
	sum := sha256.Sum256([]byte(content + "|" + entryDate))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the cached result for (content, entryDate) if present and not
// expired. Expired and corrupt records are deleted and reported as a miss.
func (c *Cache) Get(content, entryDate string) (types.ReflectionResult, bool) {
	if !c.enabled {
		return types.ReflectionResult{}, false
	}
	p := c.path(Key(content, entryDate))
	b, err := os.ReadFile(p)
	if err != nil {
		return types.ReflectionResult{}, false
	}
	var res types.ReflectionResult
	if err := json.Unmarshal(b, &res); err != nil {
		// corrupt record: delete, do not surface
		_ = os.Remove(p)
		c.log.Debug().Str("file", p).Msg("removed corrupt cache record")
		return types.ReflectionResult{}, false
	}
	if c.now().Sub(res.GeneratedAt) > c.expiry {
		_ = os.Remove(p)
		return types.ReflectionResult{}, false
	}
	return res, true
}

// Put stores the result under the fingerprint of (content, entryDate).
// Failures are swallowed; caching is not a correctness requirement.
func (c *Cache) Put(content, entryDate string, res types.ReflectionResult) {
	if !c.enabled {
		return
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(c.path(Key(content, entryDate)), b, 0o644); err != nil {
		c.log.Debug().Err(err).Msg("cache write failed")
	}
}

// Clear removes all cache records.
func (c *Cache) Clear() error {
	if !c.enabled || !fsutil.PathExists(c.dir) {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Stats reports the number of cached reflections and their total size.
func (c *Cache) Stats() types.CacheStats {
	st := types.CacheStats{Enabled: c.enabled, Dir: c.dir}
	if !c.enabled || !fsutil.PathExists(c.dir) {
		return st
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return st
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		st.Entries++
		if fi, err := e.Info(); err == nil {
			st.SizeBytes += fi.Size()
		}
	}
	return st
}

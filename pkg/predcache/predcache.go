// Package predcache caches staging sidecar responses so re-checking the
// same recording does not re-run the classifier per channel.
package predcache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maypok86/otter/v2"
)

const snapshotFile = "predictions.gob"

// Entry is one cached sidecar response body.
type Entry struct {
	ExpiresAt time.Time
	Data      []byte
}

// Cache is an in-memory prediction cache with an optional gob snapshot
// on disk, loaded on startup and written on Close.
type Cache struct {
	cache  otter.Cache[string, Entry]
	logger *slog.Logger
	dir    string
	ttl    time.Duration
}

// New creates a memory-only cache.
func New(ttl time.Duration, logger *slog.Logger) *Cache {
	cache := otter.Must(&otter.Options[string, Entry]{
		MaximumSize:      10_000,
		InitialCapacity:  1_000,
		ExpiryCalculator: otter.ExpiryWriting[string, Entry](ttl),
	})
	return &Cache{cache: *cache, ttl: ttl, logger: logger}
}

// NewWithDir creates a cache backed by a gob snapshot under dir. A stale
// or unreadable snapshot is ignored, the cache starts empty.
func NewWithDir(dir string, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c := New(ttl, logger)
	c.dir = dir
	if err := c.loadSnapshot(); err != nil {
		logger.Warn("prediction cache snapshot not loaded", "error", err)
	}
	logger.Debug("prediction cache ready", "dir", dir, "entries", c.cache.EstimatedSize())
	return c, nil
}

// key digests the request payload so the cache key covers the recording
// reference, channel roles, and montage all at once.
func key(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached response for a request payload, if any.
func (c *Cache) Get(url string, request []byte) ([]byte, bool) {
	entry, found := c.cache.GetIfPresent(key([]byte(url), request))
	if !found {
		return nil, false
	}
	// Otter expires on its own; the double check guards snapshot entries.
	if time.Now().After(entry.ExpiresAt) {
		c.cache.Invalidate(key([]byte(url), request))
		return nil, false
	}
	return entry.Data, true
}

// Set stores a sidecar response for a request payload.
func (c *Cache) Set(url string, request, response []byte) {
	c.cache.Set(key([]byte(url), request), Entry{
		Data:      response,
		ExpiresAt: time.Now().Add(c.ttl),
	})
}

// Len returns the estimated number of live entries.
func (c *Cache) Len() int {
	return int(c.cache.EstimatedSize())
}

// Close writes the snapshot when the cache is disk-backed.
func (c *Cache) Close() error {
	if c.dir == "" {
		return nil
	}
	if err := c.saveSnapshot(); err != nil {
		c.logger.Error("prediction cache snapshot failed", "error", err)
		return err
	}
	return nil
}

func (c *Cache) loadSnapshot() error {
	path := filepath.Join(c.dir, snapshotFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			c.logger.Debug("closing snapshot failed", "error", closeErr)
		}
	}()

	var entries map[string]Entry
	if err := gob.NewDecoder(file).Decode(&entries); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	now := time.Now()
	loaded := 0
	for k, entry := range entries {
		if now.Before(entry.ExpiresAt) {
			c.cache.Set(k, entry)
			loaded++
		}
	}
	c.logger.Debug("snapshot loaded", "path", path, "valid", loaded, "expired", len(entries)-loaded)
	return nil
}

func (c *Cache) saveSnapshot() error {
	path := filepath.Join(c.dir, snapshotFile)
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer func() {
		if removeErr := os.Remove(tempPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Debug("removing temp snapshot failed", "error", removeErr)
		}
	}()

	entries := make(map[string]Entry)
	now := time.Now()
	c.cache.All()(func(k string, entry Entry) bool {
		if now.Before(entry.ExpiresAt) {
			entries[k] = entry
		}
		return true
	})

	if err := gob.NewEncoder(file).Encode(entries); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("syncing snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	c.logger.Debug("snapshot saved", "path", path, "entries", len(entries))
	return nil
}

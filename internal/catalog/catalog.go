// Package catalog maintains the cached list of tradable symbols and the
// market each one trades on.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/trogers1052/twstock-service/internal/common"
	"github.com/trogers1052/twstock-service/internal/models"
)

// DefaultTTL is how long a loaded catalog is considered fresh
const DefaultTTL = time.Hour

// ErrNoEntries is returned by loaders that have nothing to offer
var ErrNoEntries = errors.New("catalog has no entries")

// warrantMarkers identify derivative listings that are excluded from the catalog
var warrantMarkers = []string{"購", "牛熊證", "權證"}

// Loader produces a full catalog snapshot
type Loader interface {
	Load(ctx context.Context) ([]models.CatalogEntry, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) ([]models.CatalogEntry, error)

// Load calls f
func (f LoaderFunc) Load(ctx context.Context) ([]models.CatalogEntry, error) {
	return f(ctx)
}

// Cache holds the last loaded catalog and reloads it once it is older than ttl.
// A failed reload keeps serving the stale snapshot.
type Cache struct {
	loader Loader
	ttl    time.Duration
	logger arbor.ILogger

	mu       sync.Mutex
	entries  []models.CatalogEntry
	loadedAt time.Time
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger arbor.ILogger) CacheOption {
	return func(c *Cache) {
		c.logger = common.OrSilent(logger)
	}
}

// NewCache creates a cache around loader
func NewCache(loader Loader, opts ...CacheOption) *Cache {
	c := &Cache{
		loader: loader,
		ttl:    DefaultTTL,
		logger: common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrRefresh returns the cached catalog, reloading it when it is older than the TTL at now
func (c *Cache) GetOrRefresh(ctx context.Context, now time.Time) ([]models.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries != nil && now.Sub(c.loadedAt) < c.ttl {
		return c.entries, nil
	}

	entries, err := c.loader.Load(ctx)
	if err == nil && len(entries) == 0 {
		err = ErrNoEntries
	}
	if err != nil {
		if c.entries != nil {
			c.logger.Warn().Err(err).Int("stale_entries", len(c.entries)).Msg("Catalog refresh failed, serving stale snapshot")
			return c.entries, nil
		}
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	c.entries = Normalize(entries)
	c.loadedAt = now
	c.logger.Info().Int("entries", len(c.entries)).Msg("Catalog refreshed")
	return c.entries, nil
}

// Invalidate forces the next GetOrRefresh to reload
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedAt = time.Time{}
}

// Normalize drops warrant-like listings and duplicate symbols, keeping the first occurrence
func Normalize(entries []models.CatalogEntry) []models.CatalogEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]models.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Symbol == "" || seen[e.Symbol] || IsWarrant(e.Name) {
			continue
		}
		seen[e.Symbol] = true
		out = append(out, e)
	}
	return out
}

// IsWarrant reports whether a listing name marks a warrant or callable bull/bear certificate
func IsWarrant(name string) bool {
	for _, marker := range warrantMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// Lookup finds the entry for a full symbol or a bare code
func Lookup(entries []models.CatalogEntry, symbol string) (models.CatalogEntry, bool) {
	for _, e := range entries {
		if e.Symbol == symbol || strings.HasPrefix(e.Symbol, symbol+".") {
			return e, true
		}
	}
	return models.CatalogEntry{}, false
}

// Symbols returns up to limit symbols in catalog order; limit <= 0 means all
func Symbols(entries []models.CatalogEntry, limit int) []string {
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}
	out := make([]string, 0, limit)
	for _, e := range entries[:limit] {
		out = append(out, e.Symbol)
	}
	return out
}

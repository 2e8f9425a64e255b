// Package historicalprice is a disk-backed cache of daily price series used
// by the Risk Manager's multi-timeframe extension check to compute real
// 7-day and 30-day references instead of falling back to the heuristic.
package historicalprice

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PricePoint is one daily close in a token's historical series.
type PricePoint struct {
	Time  time.Time       `json:"time"`
	Price decimal.Decimal `json:"price"`
}

// Fetcher retrieves a token's daily price series (ideally >=30 days,
// ascending by time) from whatever upstream source is wired in.
type Fetcher func(ctx context.Context, mint string) ([]PricePoint, error)

// Config tunes the cache's TTL and the minimum gap between upstream calls.
type Config struct {
	TTL             time.Duration
	MinCallInterval time.Duration
}

// DefaultConfig mirrors the documented 30-minute TTL and >=2s call gap.
func DefaultConfig() Config {
	return Config{
		TTL:             30 * time.Minute,
		MinCallInterval: 2 * time.Second,
	}
}

type cacheEntry struct {
	Series    []PricePoint `json:"series"`
	FetchedAt time.Time    `json:"fetchedAt"`
}

// Cache is the disk-backed historical price store.
type Cache struct {
	logger  *zap.Logger
	cfg     Config
	fetch   Fetcher
	dataDir string

	mu         sync.Mutex
	entries    map[string]*cacheEntry
	lastCallAt time.Time
}

// New constructs a Cache. dataDir may be empty, in which case entries live
// only in memory.
func New(logger *zap.Logger, cfg Config, fetch Fetcher, dataDir string) *Cache {
	return &Cache{
		logger:  logger.Named("historicalprice"),
		cfg:     cfg,
		fetch:   fetch,
		dataDir: dataDir,
		entries: make(map[string]*cacheEntry),
	}
}

// series returns a fresh price series for mint, fetching from upstream
// (rate-limited to at most one call per MinCallInterval across all mints)
// when the cached entry is missing or stale.
func (c *Cache) series(ctx context.Context, mint string) ([]PricePoint, error) {
	c.mu.Lock()
	if e, ok := c.entries[mint]; ok && time.Since(e.FetchedAt) < c.cfg.TTL {
		series := e.Series
		c.mu.Unlock()
		return series, nil
	}
	c.mu.Unlock()

	if loaded, ok := c.loadFromDisk(mint); ok && time.Since(loaded.FetchedAt) < c.cfg.TTL {
		c.mu.Lock()
		c.entries[mint] = loaded
		c.mu.Unlock()
		return loaded.Series, nil
	}

	c.mu.Lock()
	if wait := c.cfg.MinCallInterval - time.Since(c.lastCallAt); wait > 0 {
		c.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		c.mu.Lock()
	}
	c.lastCallAt = time.Now()
	c.mu.Unlock()

	points, err := c.fetch(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("fetch historical price series for %s: %w", mint, err)
	}

	entry := &cacheEntry{Series: points, FetchedAt: time.Now()}
	c.mu.Lock()
	c.entries[mint] = entry
	c.mu.Unlock()
	c.persist(mint, entry)

	return points, nil
}

// SevenDaysAgoPrice returns the price closest to exactly 7 days before now.
func (c *Cache) SevenDaysAgoPrice(ctx context.Context, mint string) (decimal.Decimal, bool) {
	series, err := c.series(ctx, mint)
	if err != nil || len(series) == 0 {
		return decimal.Zero, false
	}
	target := time.Now().Add(-7 * 24 * time.Hour)
	return closestPrice(series, target)
}

// ThirtyDayHigh returns the highest price observed in the last 30 days.
func (c *Cache) ThirtyDayHigh(ctx context.Context, mint string) (decimal.Decimal, bool) {
	return c.extremeSince(ctx, mint, 30*24*time.Hour, true)
}

// SevenDayLow returns the lowest price observed in the last 7 days.
func (c *Cache) SevenDayLow(ctx context.Context, mint string) (decimal.Decimal, bool) {
	return c.extremeSince(ctx, mint, 7*24*time.Hour, false)
}

func (c *Cache) extremeSince(ctx context.Context, mint string, window time.Duration, high bool) (decimal.Decimal, bool) {
	series, err := c.series(ctx, mint)
	if err != nil || len(series) == 0 {
		return decimal.Zero, false
	}
	cutoff := time.Now().Add(-window)
	found := false
	extreme := decimal.Zero
	for _, p := range series {
		if p.Time.Before(cutoff) {
			continue
		}
		if !found {
			extreme = p.Price
			found = true
			continue
		}
		if high && p.Price.GreaterThan(extreme) {
			extreme = p.Price
		}
		if !high && p.Price.LessThan(extreme) {
			extreme = p.Price
		}
	}
	return extreme, found
}

func closestPrice(series []PricePoint, target time.Time) (decimal.Decimal, bool) {
	found := false
	var best PricePoint
	var bestDelta time.Duration
	for _, p := range series {
		delta := p.Time.Sub(target)
		if delta < 0 {
			delta = -delta
		}
		if !found || delta < bestDelta {
			best, bestDelta, found = p, delta, true
		}
	}
	return best.Price, found
}

func (c *Cache) path(mint string) string {
	return filepath.Join(c.dataDir, mint+".json")
}

func (c *Cache) persist(mint string, entry *cacheEntry) {
	if c.dataDir == "" {
		return
	}
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		c.logger.Warn("failed to create historical price data dir", zap.Error(err))
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("failed to marshal historical price entry", zap.Error(err))
		return
	}
	tmp := c.path(mint) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		c.logger.Warn("failed to write historical price entry", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, c.path(mint)); err != nil {
		c.logger.Warn("failed to persist historical price entry", zap.Error(err))
	}
}

func (c *Cache) loadFromDisk(mint string) (*cacheEntry, bool) {
	if c.dataDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(c.path(mint))
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &entry, true
}

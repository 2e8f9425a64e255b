// Package pricecache implements the volatility-adaptive TTL price cache
// described in 4.D: critical reads always bypass the cache, monitoring
// reads serve a cached value while it is fresh enough for the token's
// recent volatility.
package pricecache

import (
	"context"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/agenterrors"
	"github.com/atlas-desktop/solana-sniper/pkg/solutils"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Context selects cache-bypass behavior for a read.
type Context int

const (
	// Critical reads (entry/exit decisions) always force a fresh fetch.
	Critical Context = iota
	// Monitoring reads (display, periodic checks) may be served from cache.
	Monitoring
)

const (
	minTTL           = 15 * time.Second
	maxTTL           = 60 * time.Second
	minVolForMinTTL  = 0.05 // sigma >= 5% -> MIN_TTL
	maxVolForMaxTTL  = 0.01 // sigma <= 1% -> MAX_TTL
	windowSize       = 20
	recomputeEvery   = 5
)

// Fetcher fetches a fresh price for mint from an upstream source (discovery
// HTTP API, DEX pair endpoint, etc).
type Fetcher func(ctx context.Context, mint string) (decimal.Decimal, string, error)

// Cache is the price cache.
type Cache struct {
	logger  *zap.Logger
	fetch   Fetcher

	mu      sync.Mutex
	entries map[string]*types.PriceCacheEntry
	writes  map[string]int
}

// New constructs a Cache that uses fetch to obtain fresh prices.
func New(logger *zap.Logger, fetch Fetcher) *Cache {
	return &Cache{
		logger:  logger.Named("pricecache"),
		fetch:   fetch,
		entries: make(map[string]*types.PriceCacheEntry),
		writes:  make(map[string]int),
	}
}

// TTL linearly interpolates between MIN_TTL (at sigma>=5%) and MAX_TTL (at
// sigma<=1%). Exact endpoints are honored.
func TTL(sigma decimal.Decimal) time.Duration {
	s := sigma.InexactFloat64()
	if s >= minVolForMinTTL {
		return minTTL
	}
	if s <= maxVolForMaxTTL {
		return maxTTL
	}
	// linear interpolation: sigma=1% -> maxTTL, sigma=5% -> minTTL
	frac := (s - maxVolForMaxTTL) / (minVolForMinTTL - maxVolForMaxTTL)
	span := float64(maxTTL - minTTL)
	return maxTTL - time.Duration(frac*span)
}

// GetPrice returns a price for mint under the given context. Critical
// context always performs a fresh fetch (updating the cache on success, but
// falling back to a stale value with a warning on failure). Monitoring
// context serves the cache if still fresh, else refreshes.
func (c *Cache) GetPrice(ctx context.Context, mint string, pc Context) (decimal.Decimal, error) {
	if pc == Monitoring {
		if entry, fresh := c.freshMonitoringEntry(mint); fresh {
			return entry.Price, nil
		}
	}

	price, source, err := c.fetch(ctx, mint)
	if err != nil {
		c.mu.Lock()
		existing, ok := c.entries[mint]
		c.mu.Unlock()
		if ok {
			c.logger.Warn("price refresh failed, serving stale cached price",
				zap.String("mint", mint), zap.Error(err))
			return existing.Price, nil
		}
		return decimal.Zero, agenterrors.New(agenterrors.PriceUnavailable, "pricecache", err)
	}

	c.record(mint, price, source)
	return price, nil
}

func (c *Cache) freshMonitoringEntry(mint string) (*types.PriceCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[mint]
	if !ok {
		return nil, false
	}
	ttl := TTL(entry.Volatility)
	if time.Since(entry.Timestamp) < ttl {
		return entry, true
	}
	return entry, false
}

func (c *Cache) record(mint string, price decimal.Decimal, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[mint]
	if !ok {
		entry = &types.PriceCacheEntry{}
		c.entries[mint] = entry
	}
	entry.Price = price
	entry.Timestamp = time.Now()
	entry.Source = source
	entry.RecentPrices = append(entry.RecentPrices, price)
	if len(entry.RecentPrices) > windowSize {
		entry.RecentPrices = entry.RecentPrices[len(entry.RecentPrices)-windowSize:]
	}

	c.writes[mint]++
	if c.writes[mint]%recomputeEvery == 0 {
		entry.Volatility = volatilityOf(entry.RecentPrices)
	}
}

// volatilityOf is the stddev of consecutive relative differences.
func volatilityOf(prices []decimal.Decimal) decimal.Decimal {
	returns := solutils.CalculateReturns(prices)
	if len(returns) < 2 {
		return decimal.Zero
	}
	return solutils.CalculateStdDev(returns)
}

// Snapshot returns a copy of the cache entry for mint, if any.
func (c *Cache) Snapshot(mint string) (types.PriceCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[mint]
	if !ok {
		return types.PriceCacheEntry{}, false
	}
	cp := *entry
	cp.RecentPrices = append([]decimal.Decimal(nil), entry.RecentPrices...)
	return cp, true
}


// Package discovery implements the Discovery Aggregator of 4.G: concurrent
// multi-source candidate intake, union-by-address, and a configurable
// filter gate.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source is one heterogeneous token-discovery HTTP source. It must degrade
// to an empty slice (never an error that blocks the others) on failure.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]types.Candidate, error)
}

// FilterConfig holds the configurable thresholds of the filter gate.
type FilterConfig struct {
	DexWhitelist   map[string]bool
	MinLiquidity   decimal.Decimal
	MinVolume24h   decimal.Decimal
	MaxPriceChange decimal.Decimal // abs(price_change_24h_pct)
	MinRVOL        decimal.Decimal
	MinPrice       decimal.Decimal
	MaxResults     int
}

// DefaultFilterConfig mirrors the spec's documented defaults.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinLiquidity:   decimal.NewFromInt(50_000),
		MinVolume24h:   decimal.NewFromInt(20_000),
		MaxPriceChange: decimal.NewFromInt(500),
		MinRVOL:        decimal.NewFromFloat(1.5),
		MinPrice:       decimal.NewFromFloat(0.000001),
		MaxResults:     100,
	}
}

// Aggregator concurrently queries every registered Source, unions results
// by address (first occurrence wins), and applies the filter gate.
type Aggregator struct {
	logger  *zap.Logger
	sources []Source
	filter  FilterConfig
}

// New constructs an Aggregator over sources, using filter as the gate.
func New(logger *zap.Logger, sources []Source, filter FilterConfig) *Aggregator {
	return &Aggregator{logger: logger.Named("discovery"), sources: sources, filter: filter}
}

// Discover queries every source concurrently, merges, filters, sorts by
// volume_24h descending, and truncates to MaxResults.
func (a *Aggregator) Discover(ctx context.Context) []types.Candidate {
	type result struct {
		source string
		cands  []types.Candidate
	}
	results := make(chan result, len(a.sources))

	var wg sync.WaitGroup
	for _, src := range a.sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			cands, err := s.Fetch(ctx)
			if err != nil {
				a.logger.Warn("discovery source failed, degrading to empty", zap.String("source", s.Name()), zap.Error(err))
				cands = nil
			}
			results <- result{source: s.Name(), cands: cands}
		}(src)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	seen := make(map[string]bool)
	var merged []types.Candidate
	for r := range results {
		for _, c := range r.cands {
			if seen[c.Address] {
				continue
			}
			seen[c.Address] = true
			if c.Source == "" {
				c.Source = r.source
			}
			if c.DiscoveredAt.IsZero() {
				c.DiscoveredAt = time.Now()
			}
			merged = append(merged, c)
		}
	}

	filtered := a.applyFilter(merged)
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Volume24hUSD.GreaterThan(filtered[j].Volume24hUSD)
	})
	if len(filtered) > a.filter.MaxResults {
		filtered = filtered[:a.filter.MaxResults]
	}
	return filtered
}

func (a *Aggregator) applyFilter(cands []types.Candidate) []types.Candidate {
	out := make([]types.Candidate, 0, len(cands))
	for _, c := range cands {
		if len(a.filter.DexWhitelist) > 0 && !a.filter.DexWhitelist[c.DexID] {
			continue
		}
		if c.LiquidityUSD.LessThan(a.filter.MinLiquidity) {
			continue
		}
		if c.Volume24hUSD.LessThan(a.filter.MinVolume24h) {
			continue
		}
		if c.PriceChange24hPct.Abs().GreaterThan(a.filter.MaxPriceChange) {
			continue
		}
		if rvol(c).LessThan(a.filter.MinRVOL) {
			continue
		}
		if c.PriceUSD.LessThan(a.filter.MinPrice) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// rvol is volume_1h / (volume_24h/24), the glossary's RVOL definition.
func rvol(c types.Candidate) decimal.Decimal {
	hourly := c.Volume24hUSD.Div(decimal.NewFromInt(24))
	if hourly.IsZero() {
		return decimal.Zero
	}
	return c.Volume1hUSD.Div(hourly)
}

// RVOL exposes the package-level relative-volume computation for reuse by
// the orchestrator, which needs it again after the filter gate has already
// consumed it once.
func RVOL(c types.Candidate) decimal.Decimal { return rvol(c) }

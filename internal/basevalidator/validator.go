// Package basevalidator implements the Base Validator of 4.H: a whitelist
// fast path, a rug/liquidity/volume gate, and an optional RSI-14 and
// bullish-divergence technical check, all result-cached.
package basevalidator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/agenterrors"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RugScoreFetcher obtains a rug-risk score in [0,100] for an address.
type RugScoreFetcher func(ctx context.Context, address string) (int, error)

// PairFetcher obtains the primary DEX pair for an address.
type PairFetcher func(ctx context.Context, address string) (types.DexPair, error)

// Config holds the validator's thresholds.
type Config struct {
	Whitelist    map[string]bool
	MaxRugScore  int
	MinLiquidity decimal.Decimal
	MinVolume    decimal.Decimal
	CacheTTL     time.Duration
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		Whitelist:    map[string]bool{},
		MaxRugScore:  60,
		MinLiquidity: decimal.NewFromInt(50_000),
		MinVolume:    decimal.NewFromInt(20_000),
		CacheTTL:     10 * time.Minute,
	}
}

// Result is what Validate returns.
type Result struct {
	Passed            bool
	Reason            string
	BullishDivergence bool
	RSI               *decimal.Decimal
}

type cacheEntry struct {
	result Result
	at     time.Time
}

// Validator is the Base Validator.
type Validator struct {
	logger    *zap.Logger
	cfg       Config
	rugScore  RugScoreFetcher
	pair      PairFetcher
	priceSeries func(ctx context.Context, address string) ([]decimal.Decimal, error)

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New constructs a Validator. priceSeries returns 7 days of hourly close
// prices for the RSI/divergence check; it may be nil to skip that check.
func New(logger *zap.Logger, cfg Config, rugScore RugScoreFetcher, pair PairFetcher, priceSeries func(ctx context.Context, address string) ([]decimal.Decimal, error)) *Validator {
	return &Validator{
		logger:      logger.Named("basevalidator"),
		cfg:         cfg,
		rugScore:    rugScore,
		pair:        pair,
		priceSeries: priceSeries,
		cache:       make(map[string]cacheEntry),
	}
}

// Validate runs the fast-path whitelist check, else the rug/liquidity/
// volume gate plus optional RSI divergence, caching the result for CacheTTL.
func (v *Validator) Validate(ctx context.Context, address string) (Result, error) {
	if v.cfg.Whitelist[address] {
		return Result{Passed: true, Reason: "whitelisted"}, nil
	}

	if cached, ok := v.cachedResult(address); ok {
		return cached, nil
	}

	var wg sync.WaitGroup
	var rugScore int
	var rugErr error
	var pair types.DexPair
	var pairErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		rugScore, rugErr = v.rugScore(ctx, address)
	}()
	go func() {
		defer wg.Done()
		pair, pairErr = v.pair(ctx, address)
	}()
	wg.Wait()

	if rugErr != nil {
		return Result{}, agenterrors.New(agenterrors.ValidationFailed, "basevalidator", fmt.Errorf("rug score lookup: %w", rugErr))
	}
	if pairErr != nil {
		return Result{}, agenterrors.New(agenterrors.ValidationFailed, "basevalidator", fmt.Errorf("pair lookup: %w", pairErr))
	}

	result := Result{Passed: true}
	switch {
	case rugScore > v.cfg.MaxRugScore:
		result = Result{Passed: false, Reason: fmt.Sprintf("rug_score %d exceeds max %d", rugScore, v.cfg.MaxRugScore)}
	case pair.LiquidityUSD.LessThan(v.cfg.MinLiquidity):
		result = Result{Passed: false, Reason: "liquidity below minimum"}
	case pair.VolumeH24.LessThan(v.cfg.MinVolume):
		result = Result{Passed: false, Reason: "volume below minimum"}
	}

	if result.Passed && v.priceSeries != nil {
		if prices, err := v.priceSeries(ctx, address); err == nil && len(prices) >= 14 {
			rsi := computeRSI14(prices)
			result.RSI = &rsi
			result.BullishDivergence = detectBullishDivergence(prices, rsiSeries(prices))
		}
	}

	v.store(address, result)
	return result, nil
}

func (v *Validator) cachedResult(address string) (Result, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[address]
	if !ok || time.Since(entry.at) > v.cfg.CacheTTL {
		return Result{}, false
	}
	return entry.result, true
}

func (v *Validator) store(address string, r Result) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[address] = cacheEntry{result: r, at: time.Now()}
}

// computeRSI14 is the classic 14-period RSI over the last 15 closes.
func computeRSI14(closes []decimal.Decimal) decimal.Decimal {
	if len(closes) < 15 {
		return decimal.NewFromInt(50)
	}
	window := closes[len(closes)-15:]
	gain, loss := decimal.Zero, decimal.Zero
	for i := 1; i < len(window); i++ {
		diff := window[i].Sub(window[i-1])
		if diff.GreaterThan(decimal.Zero) {
			gain = gain.Add(diff)
		} else {
			loss = loss.Add(diff.Abs())
		}
	}
	avgGain := gain.Div(decimal.NewFromInt(14))
	avgLoss := loss.Div(decimal.NewFromInt(14))
	if avgLoss.IsZero() {
		return decimal.NewFromInt(100)
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// rsiSeries computes a rolling RSI-14 value for each index with enough
// history, used by detectBullishDivergence to find the recent RSI low.
func rsiSeries(closes []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(closes))
	for i := range closes {
		if i < 14 {
			out[i] = decimal.NewFromInt(50)
			continue
		}
		out[i] = computeRSI14(closes[:i+1])
	}
	return out
}

// detectBullishDivergence flags when the most recent price low occurs later
// than the most recent RSI low — price still falling while momentum
// improves.
func detectBullishDivergence(closes, rsi []decimal.Decimal) bool {
	if len(closes) < 14 {
		return false
	}
	priceLowIdx := argmin(closes)
	rsiLowIdx := argmin(rsi)
	return priceLowIdx > rsiLowIdx
}

func argmin(values []decimal.Decimal) int {
	minIdx := 0
	for i, v := range values {
		if v.LessThan(values[minIdx]) {
			minIdx = i
		}
	}
	return minIdx
}

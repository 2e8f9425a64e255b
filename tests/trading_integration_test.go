// Package tests exercises the candidate pipeline end to end: discovery,
// base validation, strategy combination, and risk evaluation wired
// together the way cmd/agent/main.go wires them, but against stub
// dependencies instead of live RPC/HTTP endpoints.
package tests

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/basevalidator"
	"github.com/atlas-desktop/solana-sniper/internal/discovery"
	"github.com/atlas-desktop/solana-sniper/internal/risk"
	"github.com/atlas-desktop/solana-sniper/internal/sizing"
	"github.com/atlas-desktop/solana-sniper/internal/strategy"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubSource struct {
	candidates []types.Candidate
}

func (s stubSource) Fetch(ctx context.Context) ([]types.Candidate, error) {
	return s.candidates, nil
}

func goodCandidate(address string) types.Candidate {
	return types.Candidate{
		Address:      address,
		DexID:        "raydium",
		LiquidityUSD: decimal.NewFromInt(250_000),
		Volume24hUSD: decimal.NewFromInt(400_000),
		PriceUSD:     decimal.NewFromFloat(0.005),
		DiscoveredAt: time.Now(),
		Source:       "test",
	}
}

// TestDiscoveryToBaseValidatorPipeline runs a candidate from the
// discovery aggregator through the base validator's liquidity/volume/
// rug-score gate.
func TestDiscoveryToBaseValidatorPipeline(t *testing.T) {
	logger := zap.NewNop()

	healthy := goodCandidate("HealthyMint111")
	thin := goodCandidate("ThinMint222")
	thin.LiquidityUSD = decimal.NewFromInt(500)
	thin.Volume24hUSD = decimal.NewFromInt(100)

	permissiveFilter := discovery.FilterConfig{
		MinLiquidity: decimal.NewFromInt(1),
		MinVolume24h: decimal.NewFromInt(1),
		MinPrice:     decimal.NewFromFloat(0.000001),
		MaxResults:   100,
	}
	agg := discovery.New(logger, []discovery.Source{
		stubSource{candidates: []types.Candidate{healthy, thin}},
	}, permissiveFilter)

	found := agg.Discover(context.Background())
	if len(found) != 2 {
		t.Fatalf("expected both candidates to pass a permissive aggregator filter, leaving the liquidity/volume gate to the base validator, got %d", len(found))
	}

	rugScores := map[string]int{"HealthyMint111": 10, "ThinMint222": 10}
	rugFetcher := func(ctx context.Context, address string) (int, error) {
		return rugScores[address], nil
	}
	pairFetcher := func(ctx context.Context, address string) (types.DexPair, error) {
		for _, c := range []types.Candidate{healthy, thin} {
			if c.Address == address {
				return types.DexPair{
					LiquidityUSD:  c.LiquidityUSD,
					VolumeH24:     c.Volume24hUSD,
					PriceUSD:      c.PriceUSD,
					PairCreatedAt: time.Now().Add(-72 * time.Hour),
				}, nil
			}
		}
		return types.DexPair{}, nil
	}

	validator := basevalidator.New(logger, basevalidator.DefaultConfig(), rugFetcher, pairFetcher, nil)

	healthyResult, err := validator.Validate(context.Background(), healthy.Address)
	if err != nil {
		t.Fatalf("Validate(healthy): %v", err)
	}
	if !healthyResult.Passed {
		t.Fatalf("expected a liquid, high-volume candidate to pass, got reason %q", healthyResult.Reason)
	}

	thinResult, err := validator.Validate(context.Background(), thin.Address)
	if err != nil {
		t.Fatalf("Validate(thin): %v", err)
	}
	if thinResult.Passed {
		t.Fatal("expected a paper-thin-liquidity candidate to fail the base validator")
	}
}

// TestStrategyCombinerEnsembleMode exercises the full strategy registry
// through Combine in ensemble mode against a bullish-looking market
// snapshot, confirming a signal surfaces with a recognised source.
func TestStrategyCombinerEnsembleMode(t *testing.T) {
	logger := zap.NewNop()
	registry := strategy.NewRegistry(logger, strategy.DefaultConfig())

	if got := registry.Names(); len(got) == 0 {
		t.Fatal("expected the registry to auto-populate the built-in strategy variants")
	}

	mm := types.MarketMetrics{
		Candidate: goodCandidate("BullishMint333"),
		RVOL:      decimal.NewFromFloat(3.2),
		AgeHours:  decimal.NewFromInt(48),
	}

	signal := strategy.Combine(registry, strategy.ModeEnsemble, strategy.DefaultCombinerConfig(), mm, nil)
	if signal.Source == "" {
		t.Fatal("expected the combiner to tag the signal with a source")
	}
	t.Logf("ensemble signal: action=%s confidence=%s reason=%s", signal.Action, signal.Confidence, signal.Reason)
}

// TestRiskManagerConcentrationLimit confirms the Risk Manager clamps a
// request that would exceed the configured concentration limit rather
// than rejecting the trade outright.
func TestRiskManagerConcentrationLimit(t *testing.T) {
	logger := zap.NewNop()
	sizer := sizing.New(logger)
	manager := risk.New(logger, risk.DefaultConfig(), sizer, nil)

	mm := types.MarketMetrics{Candidate: goodCandidate("ConcentrationMint444")}
	pair := types.DexPair{PriceUSD: mm.PriceUSD, LiquidityUSD: mm.LiquidityUSD, VolumeH24: mm.Volume24hUSD}

	capitalSOL := decimal.NewFromInt(10)
	requestedSOL := decimal.NewFromInt(5) // 50% of capital, above the 30% default cap

	result := manager.Evaluate(context.Background(), pair, mm, nil, capitalSOL, nil, requestedSOL, false)
	if !result.Allowed {
		t.Fatalf("expected an oversized-but-not-extended request to be clamped, not rejected: %s", result.Reason)
	}
	if !result.MaxPositionSize.LessThan(requestedSOL) {
		t.Fatalf("expected MaxPositionSize to be clamped below the requested %s, got %s", requestedSOL, result.MaxPositionSize)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a concentration-limit warning")
	}
}

// TestRiskManagerDoublingGateRequiresMinimumPnL confirms a doubling
// request is rejected when the position hasn't cleared the first
// doubling's minimum PnL requirement.
func TestRiskManagerDoublingGateRequiresMinimumPnL(t *testing.T) {
	logger := zap.NewNop()
	sizer := sizing.New(logger)
	manager := risk.New(logger, risk.DefaultConfig(), sizer, nil)

	entry := decimal.NewFromFloat(0.01)
	pos := &types.Position{
		Mint:          "DoublingMint555",
		Amount:        decimal.NewFromInt(1000),
		EntryPrice:    &entry,
		DoublingCount: 0,
		OpenedAt:      time.Now().Add(-time.Hour),
	}

	mm := types.MarketMetrics{Candidate: goodCandidate(pos.Mint)}
	mm.PriceUSD = entry // flat PnL, below the 5% first-doubling requirement
	pair := types.DexPair{PriceUSD: mm.PriceUSD, LiquidityUSD: mm.LiquidityUSD, VolumeH24: mm.Volume24hUSD}

	result := manager.Evaluate(context.Background(), pair, mm, pos, decimal.NewFromInt(10), nil, decimal.NewFromInt(1), true)
	if result.Allowed {
		t.Fatal("expected a flat-PnL doubling request to be rejected by the doubling gate")
	}
}

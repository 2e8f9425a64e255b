package risk_test

import (
	"context"
	"testing"

	"github.com/atlas-desktop/solana-sniper/internal/risk"
	"github.com/atlas-desktop/solana-sniper/internal/sizing"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newManager() *risk.Manager {
	logger := zap.NewNop()
	return risk.New(logger, risk.DefaultConfig(), sizing.New(logger), nil)
}

func TestEvaluateBlocksParabolic24hMove(t *testing.T) {
	m := newManager()
	pair := types.DexPair{PriceChangeH24: decimal.NewFromInt(62)}
	mm := types.MarketMetrics{
		Candidate: types.Candidate{
			Address:           "TokenMint111",
			PriceUSD:          decimal.NewFromFloat(1.5),
			LiquidityUSD:      decimal.NewFromInt(200_000),
			Volume24hUSD:      decimal.NewFromInt(50_000),
			PriceChange24hPct: decimal.NewFromInt(62),
		},
		AgeHours: decimal.NewFromInt(48),
	}

	result := m.Evaluate(context.Background(), pair, mm, nil, decimal.NewFromInt(10), nil, decimal.NewFromInt(1), false)

	if result.Allowed {
		t.Fatal("expected extension gate to block a parabolic 24h move")
	}
	if result.Reason != "Parabolic 24h move" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestEvaluateClampsConcentration(t *testing.T) {
	m := newManager()
	pair := types.DexPair{PriceChangeH24: decimal.NewFromInt(1)}
	mm := types.MarketMetrics{
		Candidate: types.Candidate{
			Address:           "TokenMint222",
			PriceUSD:          decimal.NewFromFloat(1),
			LiquidityUSD:      decimal.NewFromInt(200_000),
			Volume24hUSD:      decimal.NewFromInt(10_000),
			PriceChange24hPct: decimal.NewFromInt(1),
		},
		AgeHours: decimal.NewFromInt(48),
	}

	result := m.Evaluate(context.Background(), pair, mm, nil, decimal.NewFromInt(10), nil, decimal.NewFromInt(5), false)

	if !result.Allowed {
		t.Fatalf("expected a small, non-extended candidate to be allowed, got reason %q", result.Reason)
	}
	want := decimal.NewFromInt(3) // 30% of 10 SOL capital
	if !result.MaxPositionSize.Equal(want) {
		t.Fatalf("expected clamped max position size %s, got %s", want, result.MaxPositionSize)
	}
}

func TestEvaluateDoublingGateRequiresProgressivePnL(t *testing.T) {
	m := newManager()
	pair := types.DexPair{PriceChangeH24: decimal.NewFromInt(1)}
	mm := types.MarketMetrics{
		Candidate: types.Candidate{
			Address:           "TokenMint333",
			PriceUSD:          decimal.NewFromFloat(1.02),
			LiquidityUSD:      decimal.NewFromInt(200_000),
			Volume24hUSD:      decimal.NewFromInt(10_000),
			PriceChange24hPct: decimal.NewFromInt(1),
		},
		AgeHours: decimal.NewFromInt(48),
	}
	entry := decimal.NewFromFloat(1.0)
	pos := &types.Position{EntryPrice: &entry, MaxDrawdown: decimal.NewFromInt(-2)}

	result := m.Evaluate(context.Background(), pair, mm, pos, decimal.NewFromInt(10), nil, decimal.NewFromInt(1), true)

	if result.Allowed {
		t.Fatal("expected doubling to be blocked: 2% P&L is below the 5% first-rung requirement")
	}
}

func TestCurrentPnLPct(t *testing.T) {
	entry := decimal.NewFromFloat(2.0)
	pos := types.Position{EntryPrice: &entry}

	got := risk.CurrentPnLPct(pos, decimal.NewFromFloat(2.2))
	want := decimal.NewFromInt(10)
	if !got.Equal(want) {
		t.Fatalf("expected 10%% P&L, got %s", got)
	}
}

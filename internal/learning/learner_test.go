package learning_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/learning"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func newLearner(t *testing.T) *learning.Learner {
	t.Helper()
	return learning.New(zap.NewNop(), learning.DefaultConfig(), "")
}

func TestRecordOutcomeUpdatesPatternStats(t *testing.T) {
	l := newLearner(t)
	outcome := types.TradeOutcome{
		Token:     "TokenA",
		ProfitPct: decimal.NewFromInt(20),
		Pattern:   "CANDLESTICK_PINBAR",
		Regime:    types.RegimeBull,
		RVOL:      decimal.NewFromInt(3),
		Liquidity: decimal.NewFromInt(200_000),
		ClosedAt:  time.Now(),
	}

	l.RecordOutcome(context.Background(), outcome)

	stats, ok := l.PatternStats("CANDLESTICK_PINBAR")
	if !ok {
		t.Fatal("expected pattern stats to be recorded")
	}
	if stats.Wins != 1 || stats.Total != 1 {
		t.Fatalf("expected a single recorded win, got wins=%d total=%d", stats.Wins, stats.Total)
	}
	if stats.QValue.LessThanOrEqual(decimal.Zero) {
		t.Fatalf("expected positive Q-value after a winning outcome, got %s", stats.QValue)
	}
}

func TestSelectPatternPrefersUntried(t *testing.T) {
	l := newLearner(t)
	l.RecordOutcome(context.Background(), types.TradeOutcome{
		ProfitPct: decimal.NewFromInt(10),
		Pattern:   "SEEN",
		ClosedAt:  time.Now(),
	})

	selected := l.SelectPattern([]string{"SEEN", "NEVER_SEEN"})
	if selected != "NEVER_SEEN" {
		t.Fatalf("expected UCB1 to prefer the untried pattern, got %q", selected)
	}
}

func TestExplorationRateDecays(t *testing.T) {
	l := newLearner(t)
	start := l.ExplorationRate()
	l.RecordOutcome(context.Background(), types.TradeOutcome{ProfitPct: decimal.NewFromInt(5), Pattern: "X", ClosedAt: time.Now()})
	if !l.ExplorationRate().LessThan(start) {
		t.Fatal("expected exploration rate to decay after a recorded outcome")
	}
}

func TestAdjustConfidenceClampedToUnitRange(t *testing.T) {
	l := newLearner(t)
	for i := 0; i < 10; i++ {
		l.RecordOutcome(context.Background(), types.TradeOutcome{
			ProfitPct: decimal.NewFromInt(40),
			Pattern:   "HOT",
			Regime:    types.RegimeBull,
			ClosedAt:  time.Now(),
		})
	}

	adjusted, reasons := l.AdjustConfidence(decimal.NewFromFloat(0.9), "HOT", types.RegimeBull, learning.AdjustContext{Now: time.Now()})
	if adjusted.GreaterThan(decimal.NewFromInt(1)) {
		t.Fatalf("expected adjusted confidence clamped to 1, got %s", adjusted)
	}
	if len(reasons) == 0 {
		t.Fatal("expected at least one adjustment reason for a pattern with history")
	}
}

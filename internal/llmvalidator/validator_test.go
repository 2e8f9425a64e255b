package llmvalidator_test

import (
	"testing"

	"github.com/atlas-desktop/solana-sniper/internal/llmvalidator"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestDegradeReducedConfidenceApproval(t *testing.T) {
	v := llmvalidator.New(zap.NewNop(), llmvalidator.DefaultConfig())
	combined := types.Signal{Confidence: decimal.NewFromFloat(0.7)}
	mm := types.MarketMetrics{Candidate: types.Candidate{
		LiquidityUSD: decimal.NewFromInt(150_000),
		Volume24hUSD: decimal.NewFromInt(80_000),
	}}

	decision := v.Degrade(combined, mm, "provider unreachable")

	if !decision.Approve || decision.RiskLevel != "medium" {
		t.Fatalf("expected a reduced-confidence medium-risk approval, got %+v", decision)
	}
}

func TestDegradeCautiousApproval(t *testing.T) {
	v := llmvalidator.New(zap.NewNop(), llmvalidator.DefaultConfig())
	combined := types.Signal{Confidence: decimal.NewFromFloat(0.58)}
	mm := types.MarketMetrics{Candidate: types.Candidate{
		LiquidityUSD: decimal.NewFromInt(150_000),
		Volume24hUSD: decimal.NewFromInt(1_000),
	}}

	decision := v.Degrade(combined, mm, "provider unreachable")

	if !decision.Approve || decision.RiskLevel != "high" {
		t.Fatalf("expected a cautious high-risk approval, got %+v", decision)
	}
}

func TestDegradeRejects(t *testing.T) {
	v := llmvalidator.New(zap.NewNop(), llmvalidator.DefaultConfig())
	combined := types.Signal{Confidence: decimal.NewFromFloat(0.3)}
	mm := types.MarketMetrics{Candidate: types.Candidate{
		LiquidityUSD: decimal.NewFromInt(10_000),
		Volume24hUSD: decimal.NewFromInt(1_000),
	}}

	decision := v.Degrade(combined, mm, "provider unreachable")

	if decision.Approve {
		t.Fatalf("expected rejection for a weak signal with thin liquidity, got %+v", decision)
	}
}

func TestDynamicProfitTargetClampedToRange(t *testing.T) {
	pct, reasons := llmvalidator.DynamicProfitTarget(
		decimal.NewFromInt(80), decimal.NewFromInt(10), decimal.NewFromInt(500_000),
		decimal.NewFromInt(10_000), decimal.NewFromFloat(0.9), 3,
	)

	if pct.GreaterThan(decimal.NewFromInt(40)) || pct.LessThan(decimal.NewFromInt(3)) {
		t.Fatalf("expected profit target clamped to [3,40], got %s", pct)
	}
	if len(reasons) == 0 {
		t.Fatal("expected at least one scoring reason for a strongly-confirmed candidate")
	}
}

func TestDynamicProfitTargetFloorsAtMinimum(t *testing.T) {
	pct, _ := llmvalidator.DynamicProfitTarget(
		decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, -3,
	)

	// base 10, minus the full 3-point liquidity penalty, minus the 3-point
	// losing-streak score: the lowest the rubric can reach is 4.
	if !pct.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected weakest candidate to floor at 4, got %s", pct)
	}
}

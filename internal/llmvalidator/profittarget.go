package llmvalidator

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// profitTargetBase is the rubric's starting point before component
// adjustments; the documented [3,40] range is a clamp, not a component sum.
var profitTargetBase = decimal.NewFromInt(10)

// DynamicProfitTarget scores a take-profit percentage from RVOL, 24h
// momentum, volume, AI confidence, liquidity, and the recent win/loss
// streak, clamped to [3,40]. streak is signed: positive for a winning
// streak, negative for a losing one.
func DynamicProfitTarget(priceChange24hPct, rvol, volume24hUSD, liquidityUSD, aiConfidence decimal.Decimal, streak int) (decimal.Decimal, []string) {
	var reasons []string
	total := profitTargetBase

	rvolScore := clampRange(rvol.Div(decimal.NewFromInt(5)).Mul(decimal.NewFromInt(10)), decimal.Zero, decimal.NewFromInt(10))
	if rvolScore.GreaterThan(decimal.Zero) {
		total = total.Add(rvolScore)
		reasons = append(reasons, fmt.Sprintf("RVOL contributes +%s", rvolScore.StringFixed(1)))
	}

	momentumScore := clampRange(priceChange24hPct.Div(decimal.NewFromInt(25)).Mul(decimal.NewFromInt(8)), decimal.Zero, decimal.NewFromInt(8))
	if momentumScore.GreaterThan(decimal.Zero) {
		total = total.Add(momentumScore)
		reasons = append(reasons, fmt.Sprintf("24h momentum contributes +%s", momentumScore.StringFixed(1)))
	}

	volumeScore := clampRange(volume24hUSD.Div(decimal.NewFromInt(100_000)).Mul(decimal.NewFromInt(3)), decimal.Zero, decimal.NewFromInt(3))
	if volumeScore.GreaterThan(decimal.Zero) {
		total = total.Add(volumeScore)
		reasons = append(reasons, fmt.Sprintf("volume contributes +%s", volumeScore.StringFixed(1)))
	}

	confidenceScore := clampRange(aiConfidence.Mul(decimal.NewFromInt(5)), decimal.Zero, decimal.NewFromInt(5))
	if confidenceScore.GreaterThan(decimal.Zero) {
		total = total.Add(confidenceScore)
		reasons = append(reasons, fmt.Sprintf("AI confidence contributes +%s", confidenceScore.StringFixed(1)))
	}

	liquidityFloor := decimal.NewFromInt(100_000)
	liquidityPenalty := decimal.Zero
	if liquidityUSD.LessThan(liquidityFloor) {
		liquidityPenalty = clampRange(
			liquidityFloor.Sub(liquidityUSD).Div(liquidityFloor).Mul(decimal.NewFromInt(3)),
			decimal.Zero, decimal.NewFromInt(3),
		)
		total = total.Sub(liquidityPenalty)
		reasons = append(reasons, fmt.Sprintf("thin liquidity penalises -%s", liquidityPenalty.StringFixed(1)))
	}

	streakScore := decimal.NewFromInt(int64(clampInt(streak, -3, 3)))
	if !streakScore.IsZero() {
		total = total.Add(streakScore)
		reasons = append(reasons, fmt.Sprintf("recent streak contributes %s", streakScore.StringFixed(1)))
	}

	return clampRange(total, decimal.NewFromInt(3), decimal.NewFromInt(40)), reasons
}

func clampRange(d, min, max decimal.Decimal) decimal.Decimal {
	if d.LessThan(min) {
		return min
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

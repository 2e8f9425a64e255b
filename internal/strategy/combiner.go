package strategy

import (
	"sort"

	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
)

// Mode selects how per-variant signals are combined into one decision.
type Mode string

const (
	ModeEnsemble     Mode = "ensemble"
	ModeConsensus    Mode = "consensus"
	ModeBest         Mode = "best"
	ModeConservative Mode = "conservative"
)

// CombinerConfig holds weights and the minimum-confidence floor.
type CombinerConfig struct {
	Weights                map[string]decimal.Decimal
	MinConfidenceThreshold decimal.Decimal
}

// DefaultCombinerConfig weights every variant equally.
func DefaultCombinerConfig() CombinerConfig {
	return CombinerConfig{
		Weights:                map[string]decimal.Decimal{},
		MinConfidenceThreshold: decimal.NewFromFloat(0.5),
	}
}

func (c CombinerConfig) weightOf(source string) decimal.Decimal {
	if w, ok := c.Weights[source]; ok {
		return w
	}
	return decimal.NewFromInt(1)
}

// Combine runs every registered strategy over metrics/existing and merges
// the resulting signals per mode. Final decisions below
// MinConfidenceThreshold are forced to HOLD.
func Combine(registry *Registry, mode Mode, cfg CombinerConfig, m types.MarketMetrics, existing *types.Position) types.Signal {
	strategies := registry.All()
	sort.Slice(strategies, func(i, j int) bool { return strategies[i].Name() < strategies[j].Name() })

	signals := make([]types.Signal, 0, len(strategies))
	for _, s := range strategies {
		signals = append(signals, s.Analyse(m, existing))
	}

	var combined types.Signal
	switch mode {
	case ModeConsensus:
		combined = consensus(signals)
	case ModeBest:
		combined = best(signals)
	case ModeConservative:
		combined = conservative(signals)
	default:
		combined = ensemble(signals, cfg)
	}

	if combined.Confidence.LessThan(cfg.MinConfidenceThreshold) {
		combined.Action = types.ActionHold
	}
	return combined
}

// ensemble is the weighted-sum combiner: each BUY/SELL vote contributes
// weight*confidence to its action's tally; the action with the higher
// tally wins, confidence is the winning tally normalised by total weight.
func ensemble(signals []types.Signal, cfg CombinerConfig) types.Signal {
	buyScore, sellScore, totalWeight := decimal.Zero, decimal.Zero, decimal.Zero
	var reasons []string
	for _, sig := range signals {
		w := cfg.weightOf(sig.Source)
		totalWeight = totalWeight.Add(w)
		switch sig.Action {
		case types.ActionBuy:
			buyScore = buyScore.Add(w.Mul(sig.Confidence))
			reasons = append(reasons, sig.Source+":buy:"+sig.Reason)
		case types.ActionSell:
			sellScore = sellScore.Add(w.Mul(sig.Confidence))
			reasons = append(reasons, sig.Source+":sell:"+sig.Reason)
		}
	}
	if totalWeight.IsZero() {
		return hold("ensemble", "no strategies registered")
	}
	if buyScore.IsZero() && sellScore.IsZero() {
		return hold("ensemble", "no strategy voted")
	}
	if buyScore.GreaterThanOrEqual(sellScore) {
		return types.Signal{Action: types.ActionBuy, Confidence: clampConfidence(buyScore.Div(totalWeight)), Reason: "weighted ensemble buy", Source: "ensemble"}
	}
	return types.Signal{Action: types.ActionSell, Confidence: clampConfidence(sellScore.Div(totalWeight)), Reason: "weighted ensemble sell", Source: "ensemble"}
}

// consensus requires every voting strategy to agree; any disagreement
// (and any HOLD from a strategy that could have voted) forces HOLD.
func consensus(signals []types.Signal) types.Signal {
	var firstAction types.Action
	var minConfidence decimal.Decimal = decimal.NewFromInt(1)
	for i, sig := range signals {
		if sig.Action == types.ActionHold {
			return hold("consensus", "at least one strategy held")
		}
		if i == 0 {
			firstAction = sig.Action
		} else if sig.Action != firstAction {
			return hold("consensus", "strategies disagree")
		}
		if sig.Confidence.LessThan(minConfidence) {
			minConfidence = sig.Confidence
		}
	}
	if len(signals) == 0 {
		return hold("consensus", "no strategies registered")
	}
	return types.Signal{Action: firstAction, Confidence: clampConfidence(minConfidence), Reason: "unanimous", Source: "consensus"}
}

// best picks the single highest-confidence non-HOLD signal.
func best(signals []types.Signal) types.Signal {
	var top *types.Signal
	for i := range signals {
		sig := signals[i]
		if sig.Action == types.ActionHold {
			continue
		}
		if top == nil || sig.Confidence.GreaterThan(top.Confidence) {
			top = &sig
		}
	}
	if top == nil {
		return hold("best", "no non-hold signal")
	}
	result := *top
	result.Source = "best:" + top.Source
	return result
}

// conservative requires >=2 high-confidence BUYs or one >=0.8 SELL.
func conservative(signals []types.Signal) types.Signal {
	const highConfidence = 0.8
	buyCount := 0
	for _, sig := range signals {
		if sig.Action == types.ActionSell && sig.Confidence.GreaterThanOrEqual(decimal.NewFromFloat(highConfidence)) {
			return types.Signal{Action: types.ActionSell, Confidence: sig.Confidence, Reason: "high-confidence sell: " + sig.Reason, Source: "conservative:" + sig.Source}
		}
		if sig.Action == types.ActionBuy && sig.Confidence.GreaterThanOrEqual(decimal.NewFromFloat(highConfidence)) {
			buyCount++
		}
	}
	if buyCount >= 2 {
		return types.Signal{Action: types.ActionBuy, Confidence: decimal.NewFromFloat(highConfidence), Reason: "multiple high-confidence buys", Source: "conservative"}
	}
	return hold("conservative", "insufficient high-confidence agreement")
}

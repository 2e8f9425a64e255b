package strategy

import (
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TrendReversalConfig tunes the oversold-reversal variant.
type TrendReversalConfig struct {
	OversoldRSI   decimal.Decimal
	VolumeSpikeRVOL decimal.Decimal
	TakeProfitPct decimal.Decimal
	StopLossPct   decimal.Decimal
	MaxHoldHours  decimal.Decimal
}

// DefaultTrendReversalConfig mirrors the documented defaults.
func DefaultTrendReversalConfig() TrendReversalConfig {
	return TrendReversalConfig{
		OversoldRSI:     decimal.NewFromInt(35),
		VolumeSpikeRVOL: decimal.NewFromFloat(2.5),
		TakeProfitPct:   decimal.NewFromInt(12),
		StopLossPct:     decimal.NewFromInt(7),
		MaxHoldHours:    decimal.NewFromInt(12),
	}
}

// TrendReversal enters on RSI oversold + volume spike + bullish divergence.
type TrendReversal struct {
	logger *zap.Logger
	cfg    TrendReversalConfig
}

// NewTrendReversal constructs the TrendReversal variant.
func NewTrendReversal(logger *zap.Logger, cfg TrendReversalConfig) *TrendReversal {
	return &TrendReversal{logger: logger.Named("strategy.trendreversal"), cfg: cfg}
}

// Name identifies this variant.
func (t *TrendReversal) Name() string { return "trend_reversal" }

// Analyse implements Strategy.
func (t *TrendReversal) Analyse(m types.MarketMetrics, existing *types.Position) types.Signal {
	if existing != nil {
		return t.analyseExit(m, *existing)
	}
	if m.RSI == nil || m.RSI.GreaterThan(t.cfg.OversoldRSI) {
		return hold(t.Name(), "RSI not oversold")
	}
	if m.RVOL.LessThan(t.cfg.VolumeSpikeRVOL) {
		return hold(t.Name(), "no volume spike")
	}
	if !m.BullishDivergence {
		return hold(t.Name(), "no bullish divergence detected")
	}
	return types.Signal{
		Action:     types.ActionBuy,
		Confidence: clampConfidence(decimal.NewFromFloat(0.7)),
		Reason:     "oversold RSI with volume spike and bullish divergence",
		Pattern:    "TREND_REVERSAL_ENTRY",
		Source:     t.Name(),
	}
}

func (t *TrendReversal) analyseExit(m types.MarketMetrics, pos types.Position) types.Signal {
	if pos.EntryPrice == nil {
		return hold(t.Name(), "no entry price on record")
	}
	profitPct := m.PriceUSD.Sub(*pos.EntryPrice).Div(*pos.EntryPrice).Mul(decimal.NewFromInt(100))
	switch {
	case profitPct.GreaterThanOrEqual(t.cfg.TakeProfitPct):
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.85), Reason: "take profit reached", Source: t.Name()}
	case profitPct.LessThanOrEqual(t.cfg.StopLossPct.Neg()):
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.9), Reason: "stop loss reached", Source: t.Name()}
	case m.AgeHours.GreaterThanOrEqual(t.cfg.MaxHoldHours):
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.5), Reason: "time-based exit", Source: t.Name()}
	default:
		return hold(t.Name(), "no exit condition met")
	}
}

package strategy

import (
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EmperorBTCConfig tunes the EmperorBTC variant's entry confirmations and
// exit thresholds.
type EmperorBTCConfig struct {
	MinConfirmations  int
	MaxRiskScore      decimal.Decimal
	TakeProfitPct     decimal.Decimal
	StopLossPct       decimal.Decimal
	MaxHoldHours      decimal.Decimal
	TimeExitMinGain   decimal.Decimal
	OversoldRSI       decimal.Decimal
	VolumeSpikeRVOL   decimal.Decimal
	HighLiquidityUSD  decimal.Decimal
	MaxRugScore       int
}

// DefaultEmperorBTCConfig mirrors the spec's documented entry/exit rules.
func DefaultEmperorBTCConfig() EmperorBTCConfig {
	return EmperorBTCConfig{
		MinConfirmations: 2,
		MaxRiskScore:     decimal.NewFromFloat(0.3),
		TakeProfitPct:    decimal.NewFromInt(15),
		StopLossPct:      decimal.NewFromInt(8),
		MaxHoldHours:     decimal.NewFromInt(24),
		TimeExitMinGain:  decimal.NewFromInt(2),
		OversoldRSI:      decimal.NewFromInt(30),
		VolumeSpikeRVOL:  decimal.NewFromInt(3),
		HighLiquidityUSD: decimal.NewFromInt(200_000),
		MaxRugScore:      40,
	}
}

// EmperorBTC is the "all quality filters pass, >=2 confirmations" variant.
type EmperorBTC struct {
	logger *zap.Logger
	cfg    EmperorBTCConfig
}

// NewEmperorBTC constructs the EmperorBTC variant.
func NewEmperorBTC(logger *zap.Logger, cfg EmperorBTCConfig) *EmperorBTC {
	return &EmperorBTC{logger: logger.Named("strategy.emperorbtc"), cfg: cfg}
}

// Name identifies this variant in signals and pattern stats.
func (e *EmperorBTC) Name() string { return "emperor_btc" }

// Analyse implements Strategy.
func (e *EmperorBTC) Analyse(m types.MarketMetrics, existing *types.Position) types.Signal {
	if existing != nil {
		return e.analyseExit(m, *existing)
	}
	return e.analyseEntry(m)
}

func (e *EmperorBTC) analyseEntry(m types.MarketMetrics) types.Signal {
	confirmations := 0
	if m.LiquidityUSD.GreaterThanOrEqual(e.cfg.HighLiquidityUSD) {
		confirmations++
	}
	if m.Volume24hUSD.GreaterThan(decimal.Zero) && m.RVOL.GreaterThanOrEqual(decimal.NewFromFloat(1.5)) {
		confirmations++
	}
	if m.RugScore != nil && *m.RugScore < e.cfg.MaxRugScore {
		confirmations++
	}
	if m.RSI != nil && m.RSI.LessThanOrEqual(e.cfg.OversoldRSI) {
		confirmations++
	}
	if m.RVOL.GreaterThanOrEqual(e.cfg.VolumeSpikeRVOL) {
		confirmations++
	}

	riskScore := decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(confirmations)).Div(decimal.NewFromInt(5)))
	if confirmations < e.cfg.MinConfirmations || riskScore.GreaterThanOrEqual(e.cfg.MaxRiskScore) {
		return hold(e.Name(), "insufficient confirmations or risk score too high")
	}

	confidence := clampConfidence(decimal.NewFromInt(int64(confirmations)).Div(decimal.NewFromInt(5)).Add(decimal.NewFromFloat(0.3)))
	return types.Signal{
		Action:     types.ActionBuy,
		Confidence: confidence,
		Reason:     "quality filters passed with sufficient confirmations",
		Pattern:    "EMPEROR_ENTRY",
		Source:     e.Name(),
		Metadata:   map[string]any{"confirmations": confirmations},
	}
}

func (e *EmperorBTC) analyseExit(m types.MarketMetrics, pos types.Position) types.Signal {
	if pos.EntryPrice == nil {
		return hold(e.Name(), "no entry price on record")
	}
	profitPct := m.PriceUSD.Sub(*pos.EntryPrice).Div(*pos.EntryPrice).Mul(decimal.NewFromInt(100))

	if profitPct.GreaterThanOrEqual(e.cfg.TakeProfitPct) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.9), Reason: "take profit target reached", Source: e.Name()}
	}
	if profitPct.LessThanOrEqual(e.cfg.StopLossPct.Neg()) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.95), Reason: "stop loss triggered", Source: e.Name()}
	}

	ageHours := m.AgeHours.Sub(decimal.NewFromInt(0))
	if ageHours.GreaterThanOrEqual(e.cfg.MaxHoldHours) && profitPct.GreaterThanOrEqual(e.cfg.TimeExitMinGain) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.6), Reason: "time exit with small gain past hold cap", Source: e.Name()}
	}
	if m.RVOL.LessThan(decimal.NewFromFloat(0.5)) && profitPct.GreaterThan(decimal.Zero) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.55), Reason: "trailing exit on deteriorating conditions", Source: e.Name()}
	}
	return hold(e.Name(), "no exit condition met")
}

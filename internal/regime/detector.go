// Package regime classifies the coarse market trend feeding the Adaptive
// Learner's discretised state: {BULL, BEAR, SIDEWAYS, VOLATILE}.
package regime

import (
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the classification thresholds.
type Config struct {
	TrendThresholdPct     decimal.Decimal // |price_change_24h| below this is SIDEWAYS
	VolatileRVOLThreshold decimal.Decimal // RVOL at/above this overrides trend to VOLATILE
}

// DefaultConfig mirrors the documented thresholds.
func DefaultConfig() Config {
	return Config{
		TrendThresholdPct:     decimal.NewFromInt(5),
		VolatileRVOLThreshold: decimal.NewFromInt(5),
	}
}

// Detector classifies a Regime from a candidate's recent price action and
// relative volume. The teacher's full hidden-Markov transition-matrix model
// classified eight states from bar-by-bar emission statistics; this is
// simplified to the four states the learner's discretised market state
// actually consumes (see DESIGN.md).
type Detector struct {
	logger *zap.Logger
	cfg    Config
}

// New constructs a Detector.
func New(logger *zap.Logger, cfg Config) *Detector {
	return &Detector{logger: logger.Named("regime"), cfg: cfg}
}

// Classify returns the Regime for a candidate's metrics.
func (d *Detector) Classify(m types.MarketMetrics) types.Regime {
	if m.RVOL.GreaterThanOrEqual(d.cfg.VolatileRVOLThreshold) {
		return types.RegimeVolatile
	}
	switch {
	case m.PriceChange24hPct.GreaterThanOrEqual(d.cfg.TrendThresholdPct):
		return types.RegimeBull
	case m.PriceChange24hPct.LessThanOrEqual(d.cfg.TrendThresholdPct.Neg()):
		return types.RegimeBear
	default:
		return types.RegimeSideways
	}
}

// State builds the full discretised MarketState the learner keys on.
func (d *Detector) State(m types.MarketMetrics) types.MarketState {
	return types.MarketState{
		Regime:    d.Classify(m),
		RVOL:      types.BucketRVOL(m.RVOL),
		Liquidity: types.BucketLiquidity(m.LiquidityUSD),
	}
}

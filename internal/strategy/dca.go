package strategy

import (
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DCAConfig tunes the dollar-cost-average variant.
type DCAConfig struct {
	DipThresholdPct    decimal.Decimal // min 24h drop to qualify as a "dip"
	MaxInvestmentSOL   decimal.Decimal
	IncrementSOL       decimal.Decimal
	ProfitTargetPct    decimal.Decimal
}

// DefaultDCAConfig mirrors the documented defaults.
func DefaultDCAConfig() DCAConfig {
	return DCAConfig{
		DipThresholdPct:  decimal.NewFromInt(-10),
		MaxInvestmentSOL: decimal.NewFromFloat(0.5),
		IncrementSOL:     decimal.NewFromFloat(0.05),
		ProfitTargetPct:  decimal.NewFromInt(8),
	}
}

// DCA scales into quality dips with incremental sizing capped per token.
type DCA struct {
	logger *zap.Logger
	cfg    DCAConfig
}

// NewDCA constructs the DCA variant.
func NewDCA(logger *zap.Logger, cfg DCAConfig) *DCA {
	return &DCA{logger: logger.Named("strategy.dca"), cfg: cfg}
}

// Name identifies this variant.
func (d *DCA) Name() string { return "dca" }

// Analyse implements Strategy.
func (d *DCA) Analyse(m types.MarketMetrics, existing *types.Position) types.Signal {
	if existing != nil {
		return d.analyseExit(m, *existing)
	}
	if m.PriceChange24hPct.GreaterThan(d.cfg.DipThresholdPct) {
		return hold(d.Name(), "not a qualifying dip")
	}
	if m.LiquidityUSD.LessThan(decimal.NewFromInt(50_000)) {
		return hold(d.Name(), "liquidity too low for a dip entry")
	}
	amount := d.cfg.IncrementSOL
	confidence := clampConfidence(decimal.NewFromFloat(0.55))
	return types.Signal{
		Action:     types.ActionBuy,
		Confidence: confidence,
		Reason:     "quality dip pattern detected",
		Pattern:    "DCA_DIP",
		Amount:     &amount,
		Source:     d.Name(),
	}
}

func (d *DCA) analyseExit(m types.MarketMetrics, pos types.Position) types.Signal {
	if pos.EntryPrice == nil {
		return hold(d.Name(), "no entry price on record")
	}
	profitPct := m.PriceUSD.Sub(*pos.EntryPrice).Div(*pos.EntryPrice).Mul(decimal.NewFromInt(100))
	if profitPct.GreaterThanOrEqual(d.cfg.ProfitTargetPct) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.8), Reason: "DCA profit target reached", Source: d.Name()}
	}
	if pos.Amount.GreaterThanOrEqual(d.cfg.MaxInvestmentSOL) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.5), Reason: "max DCA investment reached, de-risking", Source: d.Name()}
	}
	return hold(d.Name(), "holding through dip accumulation")
}

package strategy

import (
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AntiMartingaleConfig tunes the win-doubling variant.
type AntiMartingaleConfig struct {
	MaxDoublings   int
	MomentumRVOL   decimal.Decimal
	TPLadderPct    []decimal.Decimal
	StopLossPct    decimal.Decimal
	BaseAmountSOL  decimal.Decimal
}

// DefaultAntiMartingaleConfig mirrors the spec's TP ladder 10/15/20%, SL -8%.
func DefaultAntiMartingaleConfig() AntiMartingaleConfig {
	return AntiMartingaleConfig{
		MaxDoublings:  3,
		MomentumRVOL:  decimal.NewFromInt(2),
		TPLadderPct:   []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(15), decimal.NewFromInt(20)},
		StopLossPct:   decimal.NewFromInt(8),
		BaseAmountSOL: decimal.NewFromFloat(0.05),
	}
}

// AntiMartingale enters uptrends with continuing momentum. Every entry
// signal carries BaseAmountSOL; the strategy does not scale the size per win.
// On exit it picks the take-profit rung from the position's DoublingCount.
type AntiMartingale struct {
	logger *zap.Logger
	cfg    AntiMartingaleConfig
}

// NewAntiMartingale constructs the AntiMartingale variant.
func NewAntiMartingale(logger *zap.Logger, cfg AntiMartingaleConfig) *AntiMartingale {
	return &AntiMartingale{logger: logger.Named("strategy.antimartingale"), cfg: cfg}
}

// Name identifies this variant.
func (a *AntiMartingale) Name() string { return "anti_martingale" }

// Analyse implements Strategy.
func (a *AntiMartingale) Analyse(m types.MarketMetrics, existing *types.Position) types.Signal {
	if existing != nil {
		return a.analyseExit(m, *existing)
	}
	if m.PriceChange24hPct.LessThanOrEqual(decimal.Zero) {
		return hold(a.Name(), "not in an uptrend")
	}
	if m.RVOL.LessThan(a.cfg.MomentumRVOL) {
		return hold(a.Name(), "momentum not confirmed by volume")
	}
	amount := a.cfg.BaseAmountSOL
	return types.Signal{
		Action:     types.ActionBuy,
		Confidence: clampConfidence(decimal.NewFromFloat(0.6)),
		Reason:     "uptrend with confirmed momentum",
		Pattern:    "ANTI_MARTINGALE_ENTRY",
		Amount:     &amount,
		Source:     a.Name(),
	}
}

func (a *AntiMartingale) analyseExit(m types.MarketMetrics, pos types.Position) types.Signal {
	if pos.EntryPrice == nil {
		return hold(a.Name(), "no entry price on record")
	}
	profitPct := m.PriceUSD.Sub(*pos.EntryPrice).Div(*pos.EntryPrice).Mul(decimal.NewFromInt(100))
	if profitPct.LessThanOrEqual(a.cfg.StopLossPct.Neg()) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.95), Reason: "anti-martingale stop loss", Source: a.Name()}
	}
	rung := rungForDoubling(pos.DoublingCount, a.cfg.TPLadderPct)
	if profitPct.GreaterThanOrEqual(rung) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.85), Reason: "TP ladder rung reached", Source: a.Name()}
	}
	return hold(a.Name(), "holding, ladder not yet reached")
}

func rungForDoubling(doublings int, ladder []decimal.Decimal) decimal.Decimal {
	if doublings < 0 || doublings >= len(ladder) {
		return ladder[len(ladder)-1]
	}
	return ladder[doublings]
}

// MaxDoublings returns the configured doubling cap.
func (a *AntiMartingale) MaxDoublings() int { return a.cfg.MaxDoublings }

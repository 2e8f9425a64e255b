package strategy

import (
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CandlestickConfig tunes the EmperorBTC candlestick-methodology variant.
type CandlestickConfig struct {
	MinWickToBodyRatio decimal.Decimal
	VolumeSpikeRVOL    decimal.Decimal
	MinContextScore    decimal.Decimal
}

// DefaultCandlestickConfig mirrors the documented "wick-rejection pin bar,
// >=2x body wick, RVOL confirmation, context score" rule.
func DefaultCandlestickConfig() CandlestickConfig {
	return CandlestickConfig{
		MinWickToBodyRatio: decimal.NewFromInt(2),
		VolumeSpikeRVOL:    decimal.NewFromInt(2),
		MinContextScore:    decimal.NewFromFloat(0.6),
	}
}

// Candle is the minimal OHLC shape the candlestick strategy reads.
type Candle struct {
	Open, High, Low, Close decimal.Decimal
}

// Candlestick is the wick-rejection pin-bar variant. The most recent candle
// is passed in explicitly through AnalyseCandle / AnalyseExitCandle.
type Candlestick struct {
	logger *zap.Logger
	cfg    CandlestickConfig
}

// NewCandlestick constructs the Candlestick variant.
func NewCandlestick(logger *zap.Logger, cfg CandlestickConfig) *Candlestick {
	return &Candlestick{logger: logger.Named("strategy.candlestick"), cfg: cfg}
}

// Name identifies this variant.
func (c *Candlestick) Name() string { return "candlestick" }

// Analyse implements Strategy but cannot alone decide entries or exits: both
// need the most recent candle shape, which does not travel inside
// MarketMetrics. Callers holding a candle must use AnalyseCandle /
// AnalyseExitCandle instead; Analyse always holds.
func (c *Candlestick) Analyse(m types.MarketMetrics, existing *types.Position) types.Signal {
	return hold(c.Name(), "candlestick variant requires AnalyseCandle/AnalyseExitCandle")
}

// AnalyseCandle is the entry-side analysis, taking the explicit most recent
// candle the teacher's OHLCV buffer would have produced.
func (c *Candlestick) AnalyseCandle(m types.MarketMetrics, candle Candle) types.Signal {
	if !isPinBar(candle, c.cfg.MinWickToBodyRatio) {
		return hold(c.Name(), "no wick-rejection pin bar")
	}
	if m.RVOL.LessThan(c.cfg.VolumeSpikeRVOL) {
		return hold(c.Name(), "no RVOL confirmation")
	}
	contextScore := contextScoreOf(m)
	if contextScore.LessThan(c.cfg.MinContextScore) {
		return hold(c.Name(), "context score too low")
	}
	return types.Signal{
		Action:     types.ActionBuy,
		Confidence: clampConfidence(contextScore),
		Reason:     "wick-rejection pin bar with RVOL and context confirmation",
		Pattern:    "CANDLESTICK_PINBAR",
		Source:     c.Name(),
	}
}

// AnalyseExitCandle is the exit-side analysis for an open position, given
// the most recent candle.
func (c *Candlestick) AnalyseExitCandle(pos types.Position, candle Candle) types.Signal {
	if pos.EntryPrice == nil {
		return hold(c.Name(), "no entry price on record")
	}
	if isReversalPinBar(candle, c.cfg.MinWickToBodyRatio) {
		return types.Signal{Action: types.ActionSell, Confidence: decimal.NewFromFloat(0.75), Reason: "reversal pattern detected", Source: c.Name()}
	}
	return hold(c.Name(), "no reversal pattern detected")
}

// isPinBar flags a bullish wick-rejection candle: lower wick at least
// MinWickToBodyRatio times the real body.
func isPinBar(c Candle, minRatio decimal.Decimal) bool {
	body := c.Close.Sub(c.Open).Abs()
	if body.IsZero() {
		return false
	}
	lowerWick := decimalMin(c.Open, c.Close).Sub(c.Low)
	return lowerWick.GreaterThanOrEqual(body.Mul(minRatio))
}

// isReversalPinBar flags the bearish mirror: upper wick rejection.
func isReversalPinBar(c Candle, minRatio decimal.Decimal) bool {
	body := c.Close.Sub(c.Open).Abs()
	if body.IsZero() {
		return false
	}
	upperWick := c.High.Sub(decimalMax(c.Open, c.Close))
	return upperWick.GreaterThanOrEqual(body.Mul(minRatio))
}

func decimalMin(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func decimalMax(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// contextScoreOf blends liquidity and RVOL into a rough [0,1] confidence
// seed for the pin-bar signal.
func contextScoreOf(m types.MarketMetrics) decimal.Decimal {
	liqScore := clampConfidence(m.LiquidityUSD.Div(decimal.NewFromInt(500_000)))
	rvolScore := clampConfidence(m.RVOL.Div(decimal.NewFromInt(5)))
	return liqScore.Mul(decimal.NewFromFloat(0.5)).Add(rvolScore.Mul(decimal.NewFromFloat(0.5)))
}

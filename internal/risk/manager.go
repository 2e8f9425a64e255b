// Package risk computes the multi-timeframe extension check, the
// concentration limit, and the anti-martingale doubling gate that sit
// between the Strategy Ensemble and the LLM Validator in the pipeline.
package risk

import (
	"context"

	"github.com/atlas-desktop/solana-sniper/internal/sizing"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceHistory supplies real multi-day price references when available.
// The Historical Price cache implements this; Manager falls back to a
// heuristic when it is nil or a lookup misses.
type PriceHistory interface {
	SevenDaysAgoPrice(ctx context.Context, mint string) (decimal.Decimal, bool)
	ThirtyDayHigh(ctx context.Context, mint string) (decimal.Decimal, bool)
	SevenDayLow(ctx context.Context, mint string) (decimal.Decimal, bool)
}

// Config holds the thresholds documented for the Risk Manager.
type Config struct {
	MaxPositionPct           decimal.Decimal
	MaxDoublings             int
	DoublingPnLRequirements  []decimal.Decimal // progressive: index 0 applies before the 1st doubling, etc.
	MinDoublingMaxDrawdown   decimal.Decimal   // floor, e.g. -10 (percent)
	Gain1hThresholdPct       decimal.Decimal
	Gain4hThresholdPct       decimal.Decimal
	Gain24hThresholdPct      decimal.Decimal
	Gain7dThresholdPct       decimal.Decimal
	DistanceFromMonthHighPct decimal.Decimal
	DistanceFrom7dLowPct     decimal.Decimal
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositionPct: decimal.NewFromInt(30),
		MaxDoublings:   3,
		DoublingPnLRequirements: []decimal.Decimal{
			decimal.NewFromInt(5),
			decimal.NewFromInt(10),
			decimal.NewFromInt(15),
		},
		MinDoublingMaxDrawdown:   decimal.NewFromInt(-10),
		Gain1hThresholdPct:       decimal.NewFromInt(15),
		Gain4hThresholdPct:       decimal.NewFromInt(30),
		Gain24hThresholdPct:      decimal.NewFromInt(50),
		Gain7dThresholdPct:       decimal.NewFromInt(200),
		DistanceFromMonthHighPct: decimal.NewFromInt(5),
		DistanceFrom7dLowPct:     decimal.NewFromInt(100),
	}
}

// ExtendedMetrics is the multi-timeframe view the extension check runs over.
type ExtendedMetrics struct {
	Gain1hPct             decimal.Decimal
	Gain4hPct             decimal.Decimal
	Gain24hPct            decimal.Decimal
	Gain7dPct             decimal.Decimal
	DistanceFromMonthHigh decimal.Decimal
	DistanceFrom7dLow     decimal.Decimal
	Estimated             bool // true when any field came from the heuristic fallback
}

// Manager evaluates candidates and doubling requests against risk limits.
type Manager struct {
	logger  *zap.Logger
	cfg     Config
	sizer   *sizing.Sizer
	history PriceHistory
}

// New constructs a Manager. history may be nil, in which case every
// multi-day metric is estimated heuristically.
func New(logger *zap.Logger, cfg Config, sizer *sizing.Sizer, history PriceHistory) *Manager {
	return &Manager{logger: logger.Named("risk"), cfg: cfg, sizer: sizer, history: history}
}

// Evaluate runs the extension check, concentration limit, and (when pos is
// non-nil and a doubling is being requested) the doubling gate, returning
// the combined RiskCheckResult the Orchestrator checks before the LLM
// Validator step.
func (m *Manager) Evaluate(
	ctx context.Context,
	pair types.DexPair,
	mm types.MarketMetrics,
	pos *types.Position,
	capitalSOL decimal.Decimal,
	openPositionValuesUSD []decimal.Decimal,
	requestedSizeSOL decimal.Decimal,
	requestingDoubling bool,
) types.RiskCheckResult {
	result := types.RiskCheckResult{
		Allowed:              true,
		MaxPositionSize:      requestedSizeSOL,
		ConfidenceMultiplier: decimal.NewFromInt(1),
	}

	ext := m.extendedMetrics(ctx, pair, mm)
	if reason, extended := m.isExtended(ext); extended {
		result.Allowed = false
		result.Reason = reason
		return result
	}

	positionPct := m.sizer.PositionPct(requestedSizeSOL, capitalSOL)
	if positionPct.GreaterThan(m.cfg.MaxPositionPct) {
		result.MaxPositionSize = m.sizer.MaxAllowedSOL(capitalSOL, m.cfg.MaxPositionPct)
		result.Warnings = append(result.Warnings, "requested size exceeds concentration limit, clamped")
	}

	totalExposurePct := m.sizer.TotalExposurePct(openPositionValuesUSD, capitalSOL)
	if totalExposurePct.GreaterThan(m.cfg.MaxPositionPct.Mul(decimal.NewFromInt(3))) {
		result.Warnings = append(result.Warnings, "aggregate exposure is high relative to capital")
		result.ConfidenceMultiplier = result.ConfidenceMultiplier.Mul(decimal.NewFromFloat(0.8))
	}

	if requestingDoubling && pos != nil {
		pnlPct := CurrentPnLPct(*pos, mm.PriceUSD)
		allowed, reason := m.checkDoubling(*pos, pnlPct)
		if !allowed {
			result.Allowed = false
			result.Reason = reason
			return result
		}
	}

	if ext.Estimated {
		result.Warnings = append(result.Warnings, "multi-timeframe metrics estimated (no historical price source)")
	}

	return result
}

// isExtended applies the six-condition extension gate.
func (m *Manager) isExtended(e ExtendedMetrics) (string, bool) {
	switch {
	case e.Gain1hPct.GreaterThan(m.cfg.Gain1hThresholdPct):
		return "Parabolic 1h move", true
	case e.Gain4hPct.GreaterThan(m.cfg.Gain4hThresholdPct):
		return "Parabolic 4h move", true
	case e.Gain24hPct.GreaterThan(m.cfg.Gain24hThresholdPct):
		return "Parabolic 24h move", true
	case e.Gain7dPct.GreaterThan(m.cfg.Gain7dThresholdPct):
		return "Parabolic 7d move", true
	case e.DistanceFromMonthHigh.LessThan(m.cfg.DistanceFromMonthHighPct):
		return "Too close to 30d high", true
	case e.DistanceFrom7dLow.GreaterThan(m.cfg.DistanceFrom7dLowPct) && e.Gain7dPct.LessThan(m.cfg.Gain7dThresholdPct):
		return "Too far above 7d low", true
	default:
		return "", false
	}
}

// checkDoubling applies the doubling ladder gate: a doubling requires spare
// doublings, a progressive minimum P&L, and a drawdown floor.
func (m *Manager) checkDoubling(pos types.Position, pnlPct decimal.Decimal) (bool, string) {
	if pos.EntryPrice == nil {
		return false, "no entry price on record"
	}
	if pos.DoublingCount >= m.cfg.MaxDoublings {
		return false, "maximum doublings reached"
	}
	if pos.MaxDrawdown.LessThan(m.cfg.MinDoublingMaxDrawdown) {
		return false, "position drawdown breached the doubling floor"
	}
	required := decimal.Zero
	if pos.DoublingCount < len(m.cfg.DoublingPnLRequirements) {
		required = m.cfg.DoublingPnLRequirements[pos.DoublingCount]
	} else if len(m.cfg.DoublingPnLRequirements) > 0 {
		required = m.cfg.DoublingPnLRequirements[len(m.cfg.DoublingPnLRequirements)-1]
	}
	if pnlPct.LessThan(required) {
		return false, "P&L below the progressive doubling requirement"
	}
	return true, ""
}

// CurrentPnLPct computes an open position's live P&L against its entry
// price, used by the caller to satisfy checkDoubling's progressive
// requirement before calling Evaluate with requestingDoubling=true.
func CurrentPnLPct(pos types.Position, currentPrice decimal.Decimal) decimal.Decimal {
	if pos.EntryPrice == nil || pos.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Sub(*pos.EntryPrice).Div(*pos.EntryPrice).Mul(decimal.NewFromInt(100))
}

// extendedMetrics builds the multi-timeframe view, preferring real
// historical prices and otherwise estimating from the DEX pair's FDV/
// liquidity/volume/age shape the way the teacher's slippage model derives
// proxies when order-book depth is unavailable.
func (m *Manager) extendedMetrics(ctx context.Context, pair types.DexPair, mm types.MarketMetrics) ExtendedMetrics {
	e := ExtendedMetrics{
		Gain1hPct:  pair.PriceChangeH1,
		Gain4hPct:  pair.PriceChangeH6, // closest available bucket to a 4h window
		Gain24hPct: pair.PriceChangeH24,
	}

	if m.history != nil {
		if sevenDay, ok := m.history.SevenDaysAgoPrice(ctx, mm.Address); ok && !sevenDay.IsZero() {
			e.Gain7dPct = mm.PriceUSD.Sub(sevenDay).Div(sevenDay).Mul(decimal.NewFromInt(100))
		}
		if monthHigh, ok := m.history.ThirtyDayHigh(ctx, mm.Address); ok && !monthHigh.IsZero() {
			e.DistanceFromMonthHigh = monthHigh.Sub(mm.PriceUSD).Div(monthHigh).Mul(decimal.NewFromInt(100))
		}
		if sevenLow, ok := m.history.SevenDayLow(ctx, mm.Address); ok && !sevenLow.IsZero() {
			e.DistanceFrom7dLow = mm.PriceUSD.Sub(sevenLow).Div(sevenLow).Mul(decimal.NewFromInt(100))
		}
	}

	if e.Gain7dPct.IsZero() && e.DistanceFromMonthHigh.IsZero() && e.DistanceFrom7dLow.IsZero() {
		e.Estimated = true
		ageDays := mm.AgeHours.Div(decimal.NewFromInt(24))
		capped := ageDays
		if capped.GreaterThan(decimal.NewFromInt(7)) {
			capped = decimal.NewFromInt(7)
		}
		e.Gain7dPct = mm.PriceChange24hPct.Mul(capped)

		volumeToLiq := decimal.Zero
		if !mm.LiquidityUSD.IsZero() {
			volumeToLiq = mm.Volume24hUSD.Div(mm.LiquidityUSD)
		}
		e.DistanceFromMonthHigh = decimal.NewFromInt(100).Div(decimal.NewFromInt(1).Add(mm.FDVToLiqRatio))
		e.DistanceFrom7dLow = volumeToLiq.Mul(decimal.NewFromInt(20))
	}

	return e
}

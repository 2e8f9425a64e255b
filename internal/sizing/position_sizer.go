// Package sizing holds the exposure-ratio helpers the Risk Manager's
// concentration gate and the Orchestrator's position-size reporting use.
package sizing

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Sizer exposes exposure-ratio helpers over a capital base.
type Sizer struct {
	logger *zap.Logger
}

// New constructs a Sizer.
func New(logger *zap.Logger) *Sizer {
	return &Sizer{logger: logger.Named("sizing")}
}

// PositionPct returns what fraction (0-100) of capital a candidate position
// of amountSOL would represent.
func (s *Sizer) PositionPct(amountSOL, capitalSOL decimal.Decimal) decimal.Decimal {
	if capitalSOL.IsZero() {
		return decimal.Zero
	}
	return amountSOL.Div(capitalSOL).Mul(decimal.NewFromInt(100))
}

// MaxAllowedSOL returns the largest position size, in SOL, that stays at or
// under maxPct of capital.
func (s *Sizer) MaxAllowedSOL(capitalSOL, maxPct decimal.Decimal) decimal.Decimal {
	return capitalSOL.Mul(maxPct).Div(decimal.NewFromInt(100))
}

// ClampToMax returns the smaller of requested and the max-allowed size for
// maxPct of capital.
func (s *Sizer) ClampToMax(requestedSOL, capitalSOL, maxPct decimal.Decimal) decimal.Decimal {
	max := s.MaxAllowedSOL(capitalSOL, maxPct)
	if requestedSOL.GreaterThan(max) {
		return max
	}
	return requestedSOL
}

// TotalExposurePct sums every open position's current USD value against
// capital, expressed as a percentage.
func (s *Sizer) TotalExposurePct(positionValuesUSD []decimal.Decimal, capitalUSD decimal.Decimal) decimal.Decimal {
	if capitalUSD.IsZero() {
		return decimal.Zero
	}
	total := decimal.Zero
	for _, v := range positionValuesUSD {
		total = total.Add(v)
	}
	return total.Div(capitalUSD).Mul(decimal.NewFromInt(100))
}

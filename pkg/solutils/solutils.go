// Package solutils holds small numeric and ID helpers shared across the
// sniper agent's components: EMA/SMA smoothing, percentage/stddev math, and
// exponential-backoff retry.
package solutils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateID returns a random hex ID, optionally prefixed (e.g. "sig_a1b2...").
func GenerateID(prefix string) string {
	buf := make([]byte, 16)
	rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix != "" {
		return fmt.Sprintf("%s_%s", prefix, id)
	}
	return id
}

// CalculatePercentageChange returns (new-old)/old * 100, zero when old is zero.
func CalculatePercentageChange(old, new decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		return decimal.Zero
	}
	return new.Sub(old).Div(old).Mul(decimal.NewFromInt(100))
}

// CalculateReturns computes consecutive relative differences of a price series.
func CalculateReturns(prices []decimal.Decimal) []decimal.Decimal {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]decimal.Decimal, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1].IsZero() {
			returns[i-1] = decimal.Zero
			continue
		}
		returns[i-1] = prices[i].Sub(prices[i-1]).Div(prices[i-1])
	}
	return returns
}

// CalculateMean is the arithmetic mean of a decimal slice.
func CalculateMean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// CalculateStdDev is the sample standard deviation (n-1 denominator).
func CalculateStdDev(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	mean := CalculateMean(values)
	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1)))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// MinDecimal returns the smaller of a and b.
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxDecimal returns the larger of a and b.
func MaxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// ClampDecimal clamps value to [min, max].
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// RetryConfig parameterizes exponential backoff.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig matches the spec's MAX_RETRIES-with-exponential-backoff
// description for transport failures.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn until it succeeds or MaxAttempts is exhausted, sleeping with
// exponential backoff between attempts. The wait is a plain time.Sleep and
// takes no context, so it cannot be cancelled.
func Retry[T any](fn func(attempt int) (T, error), cfg RetryConfig) (T, error) {
	var result T
	var err error
	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = fn(attempt)
		if err == nil {
			return result, nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return result, fmt.Errorf("after %d attempts: %w", cfg.MaxAttempts, err)
}

// EMA is a streaming exponential moving average.
type EMA struct {
	period     int
	multiplier decimal.Decimal
	current    decimal.Decimal
	count      int
}

// NewEMA creates an EMA calculator with the classic 2/(period+1) multiplier.
func NewEMA(period int) *EMA {
	return &EMA{period: period, multiplier: decimal.NewFromFloat(2.0 / float64(period+1))}
}

// Add feeds one value and returns the updated EMA.
func (e *EMA) Add(value decimal.Decimal) decimal.Decimal {
	e.count++
	if e.count == 1 {
		e.current = value
		return e.current
	}
	e.current = value.Sub(e.current).Mul(e.multiplier).Add(e.current)
	return e.current
}

// Current returns the EMA's latest value without feeding a new one.
func (e *EMA) Current() decimal.Decimal { return e.current }

// EMAUpdate applies one EMA step given an explicit alpha, without needing a
// stateful EMA struct — used by the learner, which persists prev and alpha
// separately per pattern.
func EMAUpdate(prev, value, alpha decimal.Decimal) decimal.Decimal {
	return prev.Add(alpha.Mul(value.Sub(prev)))
}

// SMA is a streaming simple moving average over a fixed window.
type SMA struct {
	period int
	values []decimal.Decimal
	sum    decimal.Decimal
}

// NewSMA creates an SMA calculator over the given window length.
func NewSMA(period int) *SMA {
	return &SMA{period: period, values: make([]decimal.Decimal, 0, period)}
}

// Add feeds one value and returns the updated SMA.
func (s *SMA) Add(value decimal.Decimal) decimal.Decimal {
	s.values = append(s.values, value)
	s.sum = s.sum.Add(value)
	if len(s.values) > s.period {
		s.sum = s.sum.Sub(s.values[0])
		s.values = s.values[1:]
	}
	return s.sum.Div(decimal.NewFromInt(int64(len(s.values))))
}

// Current returns the SMA's latest value without feeding a new one.
func (s *SMA) Current() decimal.Decimal {
	if len(s.values) == 0 {
		return decimal.Zero
	}
	return s.sum.Div(decimal.NewFromInt(int64(len(s.values))))
}

// AtomicWriteJSON writes v to path via a temp file + rename so readers never
// observe a partially-written file. The spec requires every persisted JSON
// file to be rewritten atomically; the teacher's equivalent helpers used a
// plain os.WriteFile, which this replaces everywhere persistence happens.
func AtomicWriteJSON(path string, v any, marshal func(any) ([]byte, error)) error {
	data, err := marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

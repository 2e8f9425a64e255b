// Package learning implements the adaptive reinforcement-learning layer:
// per-pattern Q-values, EMA win-rate/profit tracking, UCB1 exploration, and
// the confidence-adjustment rubric (AdjustConfidence). The Position Manager
// feeds it through RecordOutcome and reads PatternStats; no pipeline stage
// calls AdjustConfidence.
package learning

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/pkg/solutils"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config tunes the learner's learning rates and decay.
type Config struct {
	QLearningAlpha       decimal.Decimal
	WinRateEMAAlpha      decimal.Decimal
	ProfitEMAAlpha       decimal.Decimal
	BaseExplorationRate  decimal.Decimal
	MinExplorationRate   decimal.Decimal
	ExplorationDecay     decimal.Decimal
	HistoryRetention     time.Duration
	LargePositionPctFloor decimal.Decimal
}

// DefaultConfig mirrors the documented constants.
func DefaultConfig() Config {
	return Config{
		QLearningAlpha:        decimal.NewFromFloat(0.1),
		WinRateEMAAlpha:       decimal.NewFromFloat(0.3),
		ProfitEMAAlpha:        decimal.NewFromFloat(0.3),
		BaseExplorationRate:   decimal.NewFromFloat(0.15),
		MinExplorationRate:    decimal.NewFromFloat(0.05),
		ExplorationDecay:      decimal.NewFromFloat(0.995),
		HistoryRetention:      14 * 24 * time.Hour,
		LargePositionPctFloor: decimal.NewFromInt(20),
	}
}

// Learner is the adaptive-learning store. All state lives in memory and is
// atomically persisted to disk after every recorded outcome.
type Learner struct {
	logger *zap.Logger
	cfg    Config
	path   string

	mu              sync.RWMutex
	patterns        map[string]*types.PatternStats
	stateActions    map[string]*types.StateAction
	recentOutcomes  []types.TradeOutcome
	explorationRate decimal.Decimal

	extendedWins, extendedTotal             int
	largePositionWins, largePositionTotal   int
	doublingWins, doublingTotal             int
}

type persistedState struct {
	Patterns        map[string]*types.PatternStats `json:"patterns"`
	StateActions    map[string]*types.StateAction   `json:"stateActions"`
	RecentOutcomes  []types.TradeOutcome            `json:"recentOutcomes"`
	ExplorationRate decimal.Decimal                 `json:"explorationRate"`
}

// New constructs a Learner, loading any prior state found at path.
func New(logger *zap.Logger, cfg Config, path string) *Learner {
	l := &Learner{
		logger:          logger.Named("learning"),
		cfg:             cfg,
		path:            path,
		patterns:        make(map[string]*types.PatternStats),
		stateActions:    make(map[string]*types.StateAction),
		explorationRate: cfg.BaseExplorationRate,
	}
	l.load()
	return l
}

// RecordOutcome folds a closed trade into every tracked statistic: pattern
// EMA win-rate/profit, per-pattern and per-(state,pattern) Q-values,
// per-pattern regret, risk metrics, and exploration decay.
func (l *Learner) RecordOutcome(ctx context.Context, outcome types.TradeOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.recentOutcomes = append(l.recentOutcomes, outcome)
	l.evictOldLocked(time.Now())

	won := outcome.ProfitPct.GreaterThan(decimal.Zero)

	if outcome.Pattern != "" {
		stats := l.patterns[outcome.Pattern]
		if stats == nil {
			stats = &types.PatternStats{Pattern: outcome.Pattern}
			l.patterns[outcome.Pattern] = stats
		}
		stats.Total++
		if won {
			stats.Wins++
		} else {
			stats.Losses++
		}
		winValue := decimal.Zero
		if won {
			winValue = decimal.NewFromInt(1)
		}
		stats.EMAWinRate = solutils.EMAUpdate(stats.EMAWinRate, winValue, l.cfg.WinRateEMAAlpha)
		stats.EMAProfit = solutils.EMAUpdate(stats.EMAProfit, outcome.ProfitPct, l.cfg.ProfitEMAAlpha)

		reward := clamp01(outcome.ProfitPct.Add(decimal.NewFromInt(50)).Div(decimal.NewFromInt(100)))
		stats.QValue = clampRange(
			stats.QValue.Add(l.cfg.QLearningAlpha.Mul(reward.Sub(stats.QValue))),
			decimal.NewFromInt(-1), decimal.NewFromInt(1),
		)
		stats.Confidence = clamp01(decimal.NewFromInt(int64(stats.Total)).Div(decimal.NewFromInt(20)))
		stats.LastSeen = outcome.ClosedAt

		l.recomputeRegretLocked()
	}

	state := types.MarketState{
		Regime:    outcome.Regime,
		RVOL:      types.BucketRVOL(outcome.RVOL),
		Liquidity: types.BucketLiquidity(outcome.Liquidity),
	}
	sa := types.StateAction{State: state, Pattern: outcome.Pattern}
	key := sa.Key()
	existing := l.stateActions[key]
	if existing == nil {
		existing = &sa
		l.stateActions[key] = existing
	}
	existing.Visits++
	stateReward := outcome.ProfitPct.Div(decimal.NewFromInt(100))
	existing.QValue = existing.QValue.Add(l.cfg.QLearningAlpha.Mul(stateReward.Sub(existing.QValue)))
	existing.EMAReward = solutils.EMAUpdate(existing.EMAReward, stateReward, l.cfg.WinRateEMAAlpha)

	if outcome.EnteredExtended {
		l.extendedTotal++
		if won {
			l.extendedWins++
		}
	}
	if outcome.PositionSizePct.GreaterThanOrEqual(l.cfg.LargePositionPctFloor) {
		l.largePositionTotal++
		if won {
			l.largePositionWins++
		}
	}
	if outcome.Doublings > 0 {
		l.doublingTotal++
		if won {
			l.doublingWins++
		}
	}

	l.explorationRate = decimal.Max(l.cfg.MinExplorationRate, l.explorationRate.Mul(l.cfg.ExplorationDecay))

	l.persistLocked()
}

// recomputeRegretLocked updates every pattern's cumulative regret against
// the current best Q-value. Regret only ever grows, matching the documented
// monotonic invariant.
func (l *Learner) recomputeRegretLocked() {
	maxQ := decimal.NewFromInt(-1)
	for _, stats := range l.patterns {
		if stats.QValue.GreaterThan(maxQ) {
			maxQ = stats.QValue
		}
	}
	for _, stats := range l.patterns {
		gap := maxQ.Sub(stats.QValue)
		if gap.GreaterThan(decimal.Zero) {
			stats.Regret = stats.Regret.Add(gap)
		}
	}
}

// evictOldLocked drops outcomes older than the retention window. Pattern
// and state-action aggregates are cumulative and are not rewound; only the
// rolling-outcome window used for time-of-day and risk-appetite context is
// trimmed.
func (l *Learner) evictOldLocked(now time.Time) {
	cutoff := now.Add(-l.cfg.HistoryRetention)
	kept := l.recentOutcomes[:0]
	for _, o := range l.recentOutcomes {
		if o.ClosedAt.After(cutoff) {
			kept = append(kept, o)
		}
	}
	l.recentOutcomes = kept
}

// ExplorationRate returns the current decayed exploration rate.
func (l *Learner) ExplorationRate() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.explorationRate
}

// SelectPattern applies UCB1 over the candidate patterns: untried patterns
// (no recorded Total) are always selected first since their score is
// unbounded.
func (l *Learner) SelectPattern(candidates []string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(candidates) == 0 {
		return ""
	}

	totalVisits := 0
	for _, p := range candidates {
		if stats := l.patterns[p]; stats != nil {
			totalVisits += stats.Total
		}
	}
	logN := math.Log(float64(totalVisits) + 1)

	best := candidates[0]
	bestScore := math.Inf(-1)
	for _, p := range candidates {
		stats := l.patterns[p]
		if stats == nil || stats.Total == 0 {
			return p
		}
		q, _ := stats.QValue.Float64()
		score := q + 2*math.Sqrt(logN/float64(stats.Total))
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	return best
}

// AdjustContext carries the market context the confidence rubric needs
// beyond the pattern's own statistics.
type AdjustContext struct {
	Now time.Time
}

// AdjustConfidence applies the documented four-part adjustment: a clamped
// ±0.3 Q-based term, a ±0.15 regime-conditioned term from the matching
// state-action rows, a ±0.08 time-of-day boost when now falls in the
// pattern's learned preferred hour, and a ±0.2 risk-appetite term driven by
// the trailing 24h win rate.
func (l *Learner) AdjustConfidence(base decimal.Decimal, pattern string, regime types.Regime, ctx AdjustContext) (decimal.Decimal, []string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	adjusted := base
	var reasons []string

	if stats := l.patterns[pattern]; stats != nil {
		qAdj := clampRange(stats.QValue.Mul(decimal.NewFromFloat(0.3)), decimal.NewFromFloat(-0.3), decimal.NewFromFloat(0.3))
		if !qAdj.IsZero() {
			adjusted = adjusted.Add(qAdj)
			reasons = append(reasons, "q-value adjustment")
		}
	}

	if conditionAdj, ok := l.regimeConditionAdjustmentLocked(pattern, regime); ok {
		adjusted = adjusted.Add(conditionAdj)
		reasons = append(reasons, "regime-conditioned adjustment")
	}

	if hour, ok := l.preferredHourLocked(pattern); ok && hour == now.UTC().Hour() {
		adjusted = adjusted.Add(decimal.NewFromFloat(0.08))
		reasons = append(reasons, "preferred time-of-day window")
	}

	if winRate, ok := l.recentWinRateLocked(now, 24*time.Hour); ok {
		switch {
		case winRate.GreaterThanOrEqual(decimal.NewFromFloat(0.7)):
			adjusted = adjusted.Add(decimal.NewFromFloat(0.15))
			reasons = append(reasons, "strong recent win rate")
		case winRate.LessThan(decimal.NewFromFloat(0.3)):
			adjusted = adjusted.Sub(decimal.NewFromFloat(0.2))
			reasons = append(reasons, "weak recent win rate")
		}
	}

	return clamp01(adjusted), reasons
}

// regimeConditionAdjustmentLocked averages the EMA reward of every
// state-action row matching pattern+regime (across RVOL/liquidity buckets)
// into a clamped ±0.15 term.
func (l *Learner) regimeConditionAdjustmentLocked(pattern string, regime types.Regime) (decimal.Decimal, bool) {
	sum := decimal.Zero
	n := 0
	for _, sa := range l.stateActions {
		if sa.Pattern == pattern && sa.State.Regime == regime {
			sum = sum.Add(sa.EMAReward)
			n++
		}
	}
	if n == 0 {
		return decimal.Zero, false
	}
	avg := sum.Div(decimal.NewFromInt(int64(n)))
	return clampRange(avg.Mul(decimal.NewFromFloat(0.15).Mul(decimal.NewFromInt(10))), decimal.NewFromFloat(-0.15), decimal.NewFromFloat(0.15)), true
}

// preferredHourLocked finds the UTC hour (0-23) with the highest win rate
// among recent outcomes carrying this pattern, requiring at least 3
// observations in that hour to be considered learned.
func (l *Learner) preferredHourLocked(pattern string) (int, bool) {
	type hourBucket struct {
		wins, total int
	}
	buckets := make(map[int]*hourBucket)
	for _, o := range l.recentOutcomes {
		if o.Pattern != pattern {
			continue
		}
		hour := o.ClosedAt.UTC().Hour()
		b := buckets[hour]
		if b == nil {
			b = &hourBucket{}
			buckets[hour] = b
		}
		b.total++
		if o.ProfitPct.GreaterThan(decimal.Zero) {
			b.wins++
		}
	}

	bestHour, bestRate, found := -1, -1.0, false
	hours := make([]int, 0, len(buckets))
	for h := range buckets {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		b := buckets[h]
		if b.total < 3 {
			continue
		}
		rate := float64(b.wins) / float64(b.total)
		if rate > bestRate {
			bestRate = rate
			bestHour = h
			found = true
		}
	}
	return bestHour, found
}

// recentWinRateLocked computes the win rate of outcomes within window of now.
func (l *Learner) recentWinRateLocked(now time.Time, window time.Duration) (decimal.Decimal, bool) {
	cutoff := now.Add(-window)
	wins, total := 0, 0
	for _, o := range l.recentOutcomes {
		if o.ClosedAt.Before(cutoff) {
			continue
		}
		total++
		if o.ProfitPct.GreaterThan(decimal.Zero) {
			wins++
		}
	}
	if total == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(total))), true
}

// RiskMetrics summarises the learner's observed performance under extended,
// large-position, and doubling conditions.
type RiskMetrics struct {
	ExtendedWinRate      decimal.Decimal `json:"extendedWinRate"`
	LargePositionWinRate decimal.Decimal `json:"largePositionWinRate"`
	DoublingWinRate      decimal.Decimal `json:"doublingWinRate"`
}

// RiskMetrics returns the current cumulative risk win-rates.
func (l *Learner) RiskMetrics() RiskMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return RiskMetrics{
		ExtendedWinRate:      ratio(l.extendedWins, l.extendedTotal),
		LargePositionWinRate: ratio(l.largePositionWins, l.largePositionTotal),
		DoublingWinRate:      ratio(l.doublingWins, l.doublingTotal),
	}
}

// PatternStats returns a copy of the tracked stats for a pattern, or false
// if it has never been observed.
func (l *Learner) PatternStats(pattern string) (types.PatternStats, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stats, ok := l.patterns[pattern]
	if !ok {
		return types.PatternStats{}, false
	}
	return *stats, true
}

func (l *Learner) persistLocked() {
	if l.path == "" {
		return
	}
	state := persistedState{
		Patterns:        l.patterns,
		StateActions:    l.stateActions,
		RecentOutcomes:  l.recentOutcomes,
		ExplorationRate: l.explorationRate,
	}
	if err := solutils.AtomicWriteJSON(l.path, state, func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}); err != nil {
		l.logger.Error("failed to persist learning state", zap.Error(err))
	}
}

func (l *Learner) load() {
	if l.path == "" {
		return
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		l.logger.Warn("failed to decode persisted learning state", zap.Error(err))
		return
	}
	if state.Patterns != nil {
		l.patterns = state.Patterns
	}
	if state.StateActions != nil {
		l.stateActions = state.StateActions
	}
	l.recentOutcomes = state.RecentOutcomes
	if !state.ExplorationRate.IsZero() {
		l.explorationRate = state.ExplorationRate
	}
}

func ratio(wins, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(total)))
}

func clamp01(d decimal.Decimal) decimal.Decimal {
	return clampRange(d, decimal.Zero, decimal.NewFromInt(1))
}

func clampRange(d, min, max decimal.Decimal) decimal.Decimal {
	if d.LessThan(min) {
		return min
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}

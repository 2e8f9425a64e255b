// Package positionmgr is the Position Manager of 4.N: a take-profit timer
// and a stop-loss timer, each running on its own ticker in the teacher's
// mainLoop/riskMonitorLoop idiom, plus an AI dynamic-exit overlay that can
// override either.
package positionmgr

import (
	"context"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/executor"
	"github.com/atlas-desktop/solana-sniper/internal/pricecache"
	"github.com/atlas-desktop/solana-sniper/internal/strategy"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config tunes the two timers and the dynamic-exit overlay's thresholds.
type Config struct {
	TPInterval             time.Duration
	SLInterval             time.Duration
	DefaultTargetPct       decimal.Decimal
	StopLossPct            decimal.Decimal
	MaxPriceImpactPct      decimal.Decimal
	MinSOLOut              decimal.Decimal
	EmergencySellLowPct    decimal.Decimal
	EmergencySellHighPct   decimal.Decimal
	LearnedProfitExitRatio decimal.Decimal
	StagnantHoldMinutes    decimal.Decimal
	StagnantBandPct        decimal.Decimal
	FastPumpMinutes        decimal.Decimal
	FastPumpPct            decimal.Decimal
	ReversalMinConfidence  decimal.Decimal
}

// DefaultConfig mirrors the documented defaults: 2% minimum target, 15% stop
// loss, emergency exits at -25%/+75%, exit at 90% of a pattern's learned
// average profit.
func DefaultConfig() Config {
	return Config{
		TPInterval:             30 * time.Second,
		SLInterval:             20 * time.Second,
		DefaultTargetPct:       decimal.NewFromInt(2),
		StopLossPct:            decimal.NewFromInt(15),
		MaxPriceImpactPct:      decimal.NewFromInt(5),
		MinSOLOut:              decimal.NewFromFloat(0.001),
		EmergencySellLowPct:    decimal.NewFromInt(-25),
		EmergencySellHighPct:   decimal.NewFromInt(75),
		LearnedProfitExitRatio: decimal.NewFromFloat(0.9),
		StagnantHoldMinutes:    decimal.NewFromInt(120),
		StagnantBandPct:        decimal.NewFromFloat(1),
		FastPumpMinutes:        decimal.NewFromInt(10),
		FastPumpPct:            decimal.NewFromInt(20),
		ReversalMinConfidence:  decimal.NewFromFloat(0.70),
	}
}

// PositionSource is the Position Store dependency.
type PositionSource interface {
	Positions(ctx context.Context) ([]types.Position, error)
	RemoveEntryPrice(mint string) error
}

// PriceSource is the Price Cache dependency, always read in Critical context
// for exit decisions.
type PriceSource interface {
	GetPrice(ctx context.Context, mint string, pc pricecache.Context) (decimal.Decimal, error)
}

// Seller is the Executor dependency.
type Seller interface {
	Sell(ctx context.Context, tokenMint string, rawAmount uint64, opts executor.Opts) (types.ExecutionResult, error)
}

// LearnerFeedback is the Adaptive Learner dependency.
type LearnerFeedback interface {
	RecordOutcome(ctx context.Context, outcome types.TradeOutcome)
	PatternStats(pattern string) (types.PatternStats, bool)
}

// CandleSource fetches the most recent candle for a mint, when available.
type CandleSource func(ctx context.Context, mint string) (strategy.Candle, bool)

// ExitAnalyser is the Candlestick strategy's exit-side analysis.
type ExitAnalyser interface {
	AnalyseExitCandle(pos types.Position, candle strategy.Candle) types.Signal
}

// EntryContext is the snapshot the Orchestrator hands to RecordEntry right
// after a buy confirms; the Position type itself carries none of this, so
// the manager keeps it alongside the entry price for use when the trade
// eventually closes.
type EntryContext struct {
	TargetPct       decimal.Decimal
	Pattern         string
	Regime          types.Regime
	Volume24h       decimal.Decimal
	Liquidity       decimal.Decimal
	RVOL            decimal.Decimal
	AIConfidence    decimal.Decimal
	Signals         []string
	PositionSizePct decimal.Decimal
	EnteredExtended bool
}

type trackedEntry struct {
	ctx         EntryContext
	maxDrawdown decimal.Decimal
	openedAt    time.Time
}

// Manager is the Position Manager.
type Manager struct {
	logger   *zap.Logger
	cfg      Config
	store    PositionSource
	prices   PriceSource
	seller   Seller
	learner  LearnerFeedback
	candles  CandleSource
	analyser ExitAnalyser

	mu      sync.Mutex
	entries map[string]*trackedEntry
}

// New constructs a Manager. candles/analyser may be nil to disable the
// candlestick-reversal leg of the dynamic-exit overlay.
func New(logger *zap.Logger, cfg Config, store PositionSource, prices PriceSource, seller Seller, learner LearnerFeedback, candles CandleSource, analyser ExitAnalyser) *Manager {
	return &Manager{
		logger:   logger.Named("positionmgr"),
		cfg:      cfg,
		store:    store,
		prices:   prices,
		seller:   seller,
		learner:  learner,
		candles:  candles,
		analyser: analyser,
		entries:  make(map[string]*trackedEntry),
	}
}

// RecordEntry registers the context needed to evaluate and, later, report a
// closed position. Call this once a buy has confirmed.
func (m *Manager) RecordEntry(mint string, ec EntryContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[mint] = &trackedEntry{ctx: ec, openedAt: time.Now()}
}

// Run blocks, driving the take-profit and stop-loss timers until ctx is
// cancelled. Each timer is its own goroutine, matching the teacher's
// one-ticker-per-job idiom.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m.tpLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		m.slLoop(ctx)
	}()
	wg.Wait()
}

func (m *Manager) tpLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.TPInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkTakeProfit(ctx)
		}
	}
}

func (m *Manager) slLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SLInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkStopLoss(ctx)
		}
	}
}

// checkTakeProfit iterates every position, selling when profit_pct reaches
// its target (LLM-provided if known, else the configured default) subject
// to the shared price-impact and minimum-output guards, and additionally
// applies the AI dynamic-exit overlay.
func (m *Manager) checkTakeProfit(ctx context.Context) {
	positions, err := m.store.Positions(ctx)
	if err != nil {
		m.logger.Warn("failed to list positions for take-profit check", zap.Error(err))
		return
	}
	for _, pos := range positions {
		m.evaluatePosition(ctx, pos, true)
	}
}

// checkStopLoss iterates every position, selling when the current price has
// fallen below entry*(1-SL_PCT/100).
func (m *Manager) checkStopLoss(ctx context.Context) {
	positions, err := m.store.Positions(ctx)
	if err != nil {
		m.logger.Warn("failed to list positions for stop-loss check", zap.Error(err))
		return
	}
	for _, pos := range positions {
		m.evaluatePosition(ctx, pos, false)
	}
}

// evalMu serialises exit evaluations across the TP and SL loops.
var evalMu sync.Mutex

// evaluatePosition serialises a single position's TP and SL check for the
// same tick by holding evalMu for the duration of its decision.
func (m *Manager) evaluatePosition(ctx context.Context, pos types.Position, tpPass bool) {
	evalMu.Lock()
	defer evalMu.Unlock()
	if pos.EntryPrice == nil {
		return
	}

	m.mu.Lock()
	tracked, ok := m.entries[pos.Mint]
	m.mu.Unlock()
	if !ok {
		tracked = &trackedEntry{openedAt: pos.OpenedAt}
	}

	price, err := m.prices.GetPrice(ctx, pos.Mint, pricecache.Critical)
	if err != nil {
		m.logger.Warn("price lookup failed during exit evaluation", zap.String("mint", pos.Mint), zap.Error(err))
		return
	}

	profitPct := price.Sub(*pos.EntryPrice).Div(*pos.EntryPrice).Mul(decimal.NewFromInt(100))

	m.mu.Lock()
	if profitPct.LessThan(tracked.maxDrawdown.Neg()) {
		tracked.maxDrawdown = profitPct.Neg()
	}
	m.entries[pos.Mint] = tracked
	m.mu.Unlock()

	if sell, reason := m.dynamicExit(ctx, pos, profitPct); sell {
		m.handleSell(ctx, pos, price, profitPct, reason)
		return
	}

	if tpPass {
		target := m.cfg.DefaultTargetPct
		if !tracked.ctx.TargetPct.IsZero() {
			target = tracked.ctx.TargetPct
		}
		if profitPct.GreaterThanOrEqual(target) {
			m.handleSell(ctx, pos, price, profitPct, "take-profit target reached")
		}
		return
	}

	lossFloor := decimal.NewFromInt(100).Sub(m.cfg.StopLossPct).Div(decimal.NewFromInt(100))
	if price.LessThan(pos.EntryPrice.Mul(lossFloor)) {
		m.handleSell(ctx, pos, price, profitPct, "stop-loss triggered")
	}
}

// dynamicExit applies the AI overlay: emergency thresholds, a candlestick
// reversal signal, the 90%-of-learned-average-profit rule, and the
// stagnant/fast-pump heuristics.
func (m *Manager) dynamicExit(ctx context.Context, pos types.Position, profitPct decimal.Decimal) (bool, string) {
	if profitPct.LessThanOrEqual(m.cfg.EmergencySellLowPct) {
		return true, "emergency exit: drawdown breach"
	}
	if profitPct.GreaterThanOrEqual(m.cfg.EmergencySellHighPct) {
		return true, "emergency exit: parabolic gain lock-in"
	}

	if m.candles != nil && m.analyser != nil {
		if candle, ok := m.candles(ctx, pos.Mint); ok {
			signal := m.analyser.AnalyseExitCandle(pos, candle)
			if signal.Action == types.ActionSell && signal.Confidence.GreaterThanOrEqual(m.cfg.ReversalMinConfidence) {
				return true, "candlestick reversal exit"
			}
		}
	}

	m.mu.Lock()
	tracked := m.entries[pos.Mint]
	m.mu.Unlock()
	if tracked != nil && tracked.ctx.Pattern != "" && m.learner != nil {
		if stats, ok := m.learner.PatternStats(tracked.ctx.Pattern); ok && stats.EMAProfit.GreaterThan(decimal.Zero) {
			if profitPct.GreaterThanOrEqual(stats.EMAProfit.Mul(m.cfg.LearnedProfitExitRatio)) {
				return true, "reached 90% of the pattern's learned average profit"
			}
		}
	}

	holdMinutes := decimal.NewFromFloat(time.Since(pos.OpenedAt).Minutes())
	if holdMinutes.GreaterThanOrEqual(m.cfg.StagnantHoldMinutes) && profitPct.Abs().LessThan(m.cfg.StagnantBandPct) {
		return true, "stagnant position exit"
	}
	if holdMinutes.LessThanOrEqual(m.cfg.FastPumpMinutes) && profitPct.GreaterThanOrEqual(m.cfg.FastPumpPct) {
		return true, "fast-pump lock-in exit"
	}

	return false, ""
}

// handleSell submits the exit swap and, on confirmation, credits the
// Balance Ledger (via the Executor's own RecordTx call), removes the
// Position Store's entry, and notifies the Adaptive Learner with the full
// trade outcome.
func (m *Manager) handleSell(ctx context.Context, pos types.Position, currentPrice, profitPct decimal.Decimal, reason string) {
	rawAmount := uint64(pos.Amount.IntPart())
	result, err := m.seller.Sell(ctx, pos.Mint, rawAmount, executor.Opts{})
	if err != nil {
		m.logger.Warn("exit sell failed", zap.String("mint", pos.Mint), zap.String("reason", reason), zap.Error(err))
		return
	}
	if !result.Success {
		m.logger.Info("exit sell rejected", zap.String("mint", pos.Mint), zap.String("reason", result.Reason))
		return
	}

	m.logger.Info("position closed",
		zap.String("mint", pos.Mint), zap.String("reason", reason),
		zap.String("profitPct", profitPct.String()), zap.String("signature", result.Signature))

	if err := m.store.RemoveEntryPrice(pos.Mint); err != nil {
		m.logger.Warn("failed to remove entry price after sell", zap.Error(err))
	}

	m.mu.Lock()
	tracked, ok := m.entries[pos.Mint]
	delete(m.entries, pos.Mint)
	m.mu.Unlock()

	if m.learner == nil {
		return
	}
	ec := EntryContext{}
	maxDrawdown := decimal.Zero
	if ok && tracked != nil {
		ec = tracked.ctx
		maxDrawdown = tracked.maxDrawdown
	}
	m.learner.RecordOutcome(ctx, types.TradeOutcome{
		Token:           pos.Mint,
		EntryPrice:      *pos.EntryPrice,
		ExitPrice:       currentPrice,
		ProfitPct:       profitPct,
		HoldMinutes:     decimal.NewFromFloat(time.Since(pos.OpenedAt).Minutes()),
		Volume24h:       ec.Volume24h,
		Liquidity:       ec.Liquidity,
		RVOL:            ec.RVOL,
		Pattern:         ec.Pattern,
		Regime:          ec.Regime,
		AIConfidence:    ec.AIConfidence,
		Signals:         ec.Signals,
		PositionSizePct: ec.PositionSizePct,
		MaxDrawdown:     maxDrawdown,
		EnteredExtended: ec.EnteredExtended,
		Doublings:       pos.DoublingCount,
		ClosedAt:        time.Now(),
	})
}

// Package orchestrator is the Orchestrator of 4.O: an INIT -> RUNNING ->
// STOPPING state machine driving Discovery -> Base Validator -> Strategy
// Ensemble -> Risk Manager -> LLM Validator -> Executor for each scan
// cycle, plus the Position Manager's own timers and a periodic status job.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/basevalidator"
	"github.com/atlas-desktop/solana-sniper/internal/chain"
	"github.com/atlas-desktop/solana-sniper/internal/discovery"
	"github.com/atlas-desktop/solana-sniper/internal/executor"
	"github.com/atlas-desktop/solana-sniper/internal/llmvalidator"
	"github.com/atlas-desktop/solana-sniper/internal/notify"
	"github.com/atlas-desktop/solana-sniper/internal/positionmgr"
	"github.com/atlas-desktop/solana-sniper/internal/pricecache"
	"github.com/atlas-desktop/solana-sniper/internal/regime"
	"github.com/atlas-desktop/solana-sniper/internal/risk"
	"github.com/atlas-desktop/solana-sniper/internal/sizing"
	"github.com/atlas-desktop/solana-sniper/internal/strategy"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// State is the orchestrator's lifecycle state.
type State string

const (
	StateInit     State = "INIT"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

// Config tunes the scan/status cadence and dedup window.
type Config struct {
	ScanInterval        time.Duration
	StatusInterval      time.Duration
	RecentlyAnalysedTTL time.Duration
	ShutdownGrace       time.Duration
	BaseTradeSizeSOL    decimal.Decimal
}

// DefaultConfig mirrors the documented defaults: 30s scans, 30min status,
// 15min dedup window, a 2s shutdown grace.
func DefaultConfig() Config {
	return Config{
		ScanInterval:        30 * time.Second,
		StatusInterval:      30 * time.Minute,
		RecentlyAnalysedTTL: 15 * time.Minute,
		ShutdownGrace:       2 * time.Second,
		BaseTradeSizeSOL:    decimal.NewFromFloat(0.1),
	}
}

// PositionSource mirrors positionstore.Store's read/repair surface.
type PositionSource interface {
	Positions(ctx context.Context) ([]types.Position, error)
	RecordEntryPrice(mint string, price decimal.Decimal) error
}

// BalanceSource mirrors balanceledger.Ledger's read surface.
type BalanceSource interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// BudgetSource mirrors budget.Governor's read surface.
type BudgetSource interface {
	Snapshot() types.BudgetState
}

// PairFetcher fetches a DEX pair snapshot, shared with the Base
// Validator's own dependency of the same shape.
type PairFetcher func(ctx context.Context, address string) (types.DexPair, error)

// Deps groups every manager the Orchestrator drives. cmd/agent/main.go
// constructs each of these and hands the whole set in, following the
// teacher's construct-everything-in-main idiom.
type Deps struct {
	Discovery      *discovery.Aggregator
	BaseValidator  *basevalidator.Validator
	Strategies     *strategy.Registry
	CombinerMode   strategy.Mode
	CombinerConfig strategy.CombinerConfig
	RegimeDetector *regime.Detector
	Sizer          *sizing.Sizer
	RiskManager    *risk.Manager
	LLMValidator   *llmvalidator.Validator
	Executor       *executor.Executor
	PositionMgr    *positionmgr.Manager
	PositionStore  PositionSource
	BalanceLedger  BalanceSource
	Budget         BudgetSource
	PriceCache     *pricecache.Cache
	Notifier       notify.Notifier
	PairFetcher    PairFetcher
	Multiplexer    *chain.Multiplexer
}

// Orchestrator is the Orchestrator of 4.O.
type Orchestrator struct {
	logger *zap.Logger
	cfg    Config
	deps   Deps

	mu              sync.Mutex
	state           State
	recentlyScanned map[string]time.Time
	startedAt       time.Time

	cancel context.CancelFunc
}

// New constructs an Orchestrator in the INIT state.
func New(logger *zap.Logger, cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		logger:          logger.Named("orchestrator"),
		cfg:             cfg,
		deps:            deps,
		state:           StateInit,
		recentlyScanned: make(map[string]time.Time),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start runs INIT, transitions to RUNNING, and blocks until ctx is
// cancelled, at which point it transitions to STOPPING and returns once
// every task has wound down or the shutdown grace window elapses.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.init(ctx); err != nil {
		return fmt.Errorf("orchestrator init: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.state = StateRunning
	o.startedAt = time.Now()
	o.mu.Unlock()
	o.deps.Notifier.SendGeneralAlert("orchestrator entering RUNNING")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); o.scanLoop(runCtx) }()
	go func() { defer wg.Done(); o.statusLoop(runCtx) }()
	go func() { defer wg.Done(); o.deps.PositionMgr.Run(runCtx) }()

	<-runCtx.Done()
	o.mu.Lock()
	o.state = StateStopping
	o.mu.Unlock()
	o.deps.Notifier.SendGeneralAlert("orchestrator entering STOPPING")

	stopped := make(chan struct{})
	go func() { wg.Wait(); close(stopped) }()
	select {
	case <-stopped:
	case <-time.After(o.cfg.ShutdownGrace):
		o.logger.Warn("shutdown grace window elapsed with tasks still running")
	}

	o.emitFinalStatus(ctx)
	return nil
}

// Stop cancels the run context, initiating the STOPPING transition.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// init records the baseline balance and repairs any position missing an
// entry price by sampling its current price. New-pool subscriptions are
// wired separately via SubscribeNewPools, since the program ID to watch is
// a deployment-time choice, not something this package can hardcode.
func (o *Orchestrator) init(ctx context.Context) error {
	if _, err := o.deps.BalanceLedger.GetBalance(ctx); err != nil {
		o.logger.Warn("failed to read baseline balance during init", zap.Error(err))
	}

	positions, err := o.deps.PositionStore.Positions(ctx)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	for _, pos := range positions {
		if pos.EntryPrice != nil {
			continue
		}
		price, err := o.deps.PriceCache.GetPrice(ctx, pos.Mint, pricecache.Critical)
		if err != nil {
			o.logger.Warn("failed to sample price for a position missing its entry price", zap.String("mint", pos.Mint), zap.Error(err))
			continue
		}
		if err := o.deps.PositionStore.RecordEntryPrice(pos.Mint, price); err != nil {
			o.logger.Warn("failed to repair missing entry price", zap.String("mint", pos.Mint), zap.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.scanOnce(ctx)
		}
	}
}

// scanOnce refreshes positions once, discovers candidates, and processes
// them sequentially to bound RPC pressure.
func (o *Orchestrator) scanOnce(ctx context.Context) {
	if _, err := o.deps.PositionStore.Positions(ctx); err != nil {
		o.logger.Warn("position refresh failed during scan", zap.Error(err))
	}

	candidates := o.deps.Discovery.Discover(ctx)
	capitalSOL, err := o.deps.BalanceLedger.GetBalance(ctx)
	if err != nil {
		o.logger.Warn("balance read failed during scan, skipping cycle", zap.Error(err))
		return
	}

	for _, candidate := range candidates {
		if o.recentlyAnalysed(candidate.Address) {
			continue
		}
		o.markAnalysed(candidate.Address)
		o.processCandidate(ctx, candidate, capitalSOL)
	}
}

func (o *Orchestrator) recentlyAnalysed(address string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	seenAt, ok := o.recentlyScanned[address]
	if !ok {
		return false
	}
	if time.Since(seenAt) > o.cfg.RecentlyAnalysedTTL {
		delete(o.recentlyScanned, address)
		return false
	}
	return true
}

func (o *Orchestrator) markAnalysed(address string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recentlyScanned[address] = time.Now()
}

// processCandidate drives one token through the strictly-ordered pipeline:
// validate -> strategy -> risk -> LLM -> execute.
func (o *Orchestrator) processCandidate(ctx context.Context, candidate types.Candidate, capitalSOL decimal.Decimal) {
	result, err := o.deps.BaseValidator.Validate(ctx, candidate.Address)
	if err != nil {
		o.logger.Warn("base validation failed", zap.String("mint", candidate.Address), zap.Error(err))
		return
	}
	if !result.Passed {
		o.logger.Debug("candidate rejected by base validator", zap.String("mint", candidate.Address), zap.String("reason", result.Reason))
		return
	}

	mm := types.MarketMetrics{
		Candidate:         candidate,
		RVOL:              discovery.RVOL(candidate),
		RSI:               result.RSI,
		AgeHours:          decimal.NewFromFloat(time.Since(candidate.DiscoveredAt).Hours()),
		BullishDivergence: result.BullishDivergence,
	}

	signal := strategy.Combine(o.deps.Strategies, o.deps.CombinerMode, o.deps.CombinerConfig, mm, nil)
	if signal.Action != types.ActionBuy {
		return
	}

	var pair types.DexPair
	if o.deps.PairFetcher != nil {
		pair, err = o.deps.PairFetcher(ctx, candidate.Address)
		if err != nil {
			o.logger.Warn("pair fetch failed", zap.String("mint", candidate.Address), zap.Error(err))
		}
	}

	riskResult := o.deps.RiskManager.Evaluate(ctx, pair, mm, nil, capitalSOL, nil, o.cfg.BaseTradeSizeSOL, false)
	if !riskResult.Allowed {
		o.logger.Info("candidate blocked by risk manager", zap.String("mint", candidate.Address), zap.String("reason", riskResult.Reason))
		return
	}

	decision := o.deps.LLMValidator.Validate(ctx, signal, mm, nil)
	if !decision.Approve {
		o.logger.Info("candidate rejected by LLM validator", zap.String("mint", candidate.Address), zap.String("reason", decision.Reasoning))
		return
	}

	sizeSOL := riskResult.MaxPositionSize.Mul(riskResult.ConfidenceMultiplier)
	if sizeSOL.GreaterThan(riskResult.MaxPositionSize) {
		sizeSOL = riskResult.MaxPositionSize
	}

	execResult, err := o.deps.Executor.Execute(ctx, candidate.Address, sizeSOL, executor.Opts{})
	if err != nil {
		o.logger.Warn("execution failed", zap.String("mint", candidate.Address), zap.Error(err))
		o.deps.Notifier.SendErrorAlert("executor", err)
		return
	}
	if !execResult.Success {
		o.logger.Info("execution rejected", zap.String("mint", candidate.Address), zap.String("reason", execResult.Reason))
		return
	}

	if err := o.deps.PositionStore.RecordEntryPrice(candidate.Address, candidate.PriceUSD); err != nil {
		o.logger.Warn("failed to record entry price after buy", zap.Error(err))
	}

	targetPct, _ := llmvalidator.DynamicProfitTarget(
		candidate.PriceChange24hPct, mm.RVOL, candidate.Volume24hUSD, candidate.LiquidityUSD, decision.Confidence, 0,
	)
	o.deps.PositionMgr.RecordEntry(candidate.Address, positionmgr.EntryContext{
		TargetPct:       targetPct,
		Pattern:         signal.Pattern,
		Regime:          o.deps.RegimeDetector.Classify(mm),
		Volume24h:       candidate.Volume24hUSD,
		Liquidity:       candidate.LiquidityUSD,
		RVOL:            mm.RVOL,
		AIConfidence:    decision.Confidence,
		Signals:         []string{signal.Source},
		PositionSizePct: o.deps.Sizer.PositionPct(sizeSOL, capitalSOL),
	})

	o.deps.Notifier.SendTradeAlert(notify.TradeAlert{
		Mint: candidate.Address, Side: "buy", Amount: sizeSOL, Price: candidate.PriceUSD,
		Signature: execResult.Signature,
	})
}

func (o *Orchestrator) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.emitStatus(ctx)
		}
	}
}

func (o *Orchestrator) emitStatus(ctx context.Context) {
	o.deps.Notifier.SendStatusUpdate(o.Snapshot(ctx))
}

// Snapshot builds the current status payload on demand, used by the
// periodic status job and exposed to the ambient /status HTTP endpoint.
func (o *Orchestrator) Snapshot(ctx context.Context) notify.StatusUpdate {
	balance, err := o.deps.BalanceLedger.GetBalance(ctx)
	if err != nil {
		o.logger.Warn("status snapshot balance read failed", zap.Error(err))
	}
	positions, err := o.deps.PositionStore.Positions(ctx)
	if err != nil {
		o.logger.Warn("status snapshot position read failed", zap.Error(err))
	}
	budgetState := o.deps.Budget.Snapshot()
	budgetUsedPct := decimal.Zero
	if budgetState.TotalBudget > 0 {
		budgetUsedPct = decimal.NewFromInt(int64(budgetState.CallsUsed)).
			Div(decimal.NewFromInt(int64(budgetState.TotalBudget))).
			Mul(decimal.NewFromInt(100))
	}
	return notify.StatusUpdate{
		State:         string(o.State()),
		BalanceSOL:    balance,
		OpenPositions: len(positions),
		BudgetUsedPct: budgetUsedPct,
		UptimeSeconds: int64(time.Since(o.startedAt).Seconds()),
	}
}

func (o *Orchestrator) emitFinalStatus(ctx context.Context) {
	o.emitStatus(ctx)
	o.deps.Notifier.SendGeneralAlert("orchestrator stopped")
}

// SubscribeNewPools wires a new-pool log subscription through the
// Multiplexer. The observer's only job is to log the sighting; the scan
// loop remains the single place candidates enter the pipeline, so a faster
// network event never races a scan already in flight.
func (o *Orchestrator) SubscribeNewPools(ctx context.Context, programID solana.PublicKey, commitment rpc.CommitmentType) (func(), error) {
	if o.deps.Multiplexer == nil {
		return func() {}, nil
	}
	return o.deps.Multiplexer.SubscribeLogs(ctx, programID, commitment, func(chain.LogEvent) {
		o.logger.Debug("new-pool log event observed")
	})
}

package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/balanceledger"
	"github.com/atlas-desktop/solana-sniper/internal/basevalidator"
	"github.com/atlas-desktop/solana-sniper/internal/discovery"
	"github.com/atlas-desktop/solana-sniper/internal/executor"
	"github.com/atlas-desktop/solana-sniper/internal/llmvalidator"
	"github.com/atlas-desktop/solana-sniper/internal/notify"
	"github.com/atlas-desktop/solana-sniper/internal/orchestrator"
	"github.com/atlas-desktop/solana-sniper/internal/positionmgr"
	"github.com/atlas-desktop/solana-sniper/internal/pricecache"
	"github.com/atlas-desktop/solana-sniper/internal/regime"
	"github.com/atlas-desktop/solana-sniper/internal/risk"
	"github.com/atlas-desktop/solana-sniper/internal/sizing"
	"github.com/atlas-desktop/solana-sniper/internal/strategy"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubPositions struct {
	positions []types.Position
	recorded  map[string]decimal.Decimal
	removed   []string
}

func newStubPositions() *stubPositions {
	return &stubPositions{recorded: make(map[string]decimal.Decimal)}
}

func (s *stubPositions) Positions(ctx context.Context) ([]types.Position, error) { return s.positions, nil }
func (s *stubPositions) RecordEntryPrice(mint string, price decimal.Decimal) error {
	s.recorded[mint] = price
	return nil
}
func (s *stubPositions) RemoveEntryPrice(mint string) error {
	s.removed = append(s.removed, mint)
	return nil
}

type stubBalance struct {
	balance decimal.Decimal
}

func (s *stubBalance) GetBalance(ctx context.Context) (decimal.Decimal, error) { return s.balance, nil }

type stubBudget struct{}

func (s *stubBudget) Snapshot() types.BudgetState {
	return types.BudgetState{CallsUsed: 10, TotalBudget: 100}
}

type stubNotifier struct {
	statuses []notify.StatusUpdate
	general  []string
}

func newStubNotifier() *stubNotifier { return &stubNotifier{} }

func (n *stubNotifier) SendTradeAlert(notify.TradeAlert)          {}
func (n *stubNotifier) SendErrorAlert(component string, err error) {}
func (n *stubNotifier) SendStatusUpdate(s notify.StatusUpdate)    { n.statuses = append(n.statuses, s) }
func (n *stubNotifier) SendGeneralAlert(message string)           { n.general = append(n.general, message) }

type stubSeller struct{}

func (s *stubSeller) Sell(ctx context.Context, tokenMint string, rawAmount uint64, opts executor.Opts) (types.ExecutionResult, error) {
	return types.ExecutionResult{Success: true}, nil
}

type stubLearner struct{}

func (s *stubLearner) RecordOutcome(ctx context.Context, outcome types.TradeOutcome) {}
func (s *stubLearner) PatternStats(pattern string) (types.PatternStats, bool)        { return types.PatternStats{}, false }

type stubAggregator struct{}

func (s *stubAggregator) Quote(ctx context.Context, inputMint, outputMint string, amountLamports uint64, slippageBps int) (types.QuoteResponse, error) {
	return types.QuoteResponse{}, nil
}
func (s *stubAggregator) BuildSwap(ctx context.Context, quote types.QuoteResponse, userPubkey string) (types.SwapResponse, error) {
	return types.SwapResponse{}, nil
}

type stubExecBalance struct{}

func (s *stubExecBalance) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(10), nil
}
func (s *stubExecBalance) RecordTx(ctx context.Context, kind balanceledger.TxKind, amount, fee decimal.Decimal) error {
	return nil
}

func testDeps(t *testing.T) orchestrator.Deps {
	t.Helper()
	logger := zap.NewNop()

	positionsStore := newStubPositions()
	balance := &stubBalance{balance: decimal.NewFromInt(5)}
	priceCache := pricecache.New(logger, func(ctx context.Context, mint string) (decimal.Decimal, string, error) {
		return decimal.NewFromFloat(1.0), "stub", nil
	})
	sizer := sizing.New(logger)
	riskMgr := risk.New(logger, risk.DefaultConfig(), sizer, nil)
	llm := llmvalidator.New(logger, llmvalidator.DefaultConfig())
	regimeDetector := regime.New(logger, regime.DefaultConfig())
	strategies := strategy.NewRegistry(logger, strategy.DefaultConfig())
	disc := discovery.New(logger, nil, discovery.DefaultFilterConfig())
	baseValidator := basevalidator.New(logger, basevalidator.DefaultConfig(),
		func(ctx context.Context, address string) (int, error) { return 0, nil },
		func(ctx context.Context, address string) (types.DexPair, error) { return types.DexPair{}, nil },
		nil,
	)

	exec := executor.New(logger, executor.DefaultConfig(), &stubAggregator{}, nil, &stubExecBalance{}, solanaTestSigner(t))
	posMgr := positionmgr.New(logger, positionmgr.DefaultConfig(), positionsStore, stubPrices{}, &stubSeller{}, &stubLearner{}, nil, nil)

	return orchestrator.Deps{
		Discovery:      disc,
		BaseValidator:  baseValidator,
		Strategies:     strategies,
		CombinerMode:   strategy.ModeEnsemble,
		CombinerConfig: strategy.DefaultCombinerConfig(),
		RegimeDetector: regimeDetector,
		Sizer:          sizer,
		RiskManager:    riskMgr,
		LLMValidator:   llm,
		Executor:       exec,
		PositionMgr:    posMgr,
		PositionStore:  positionsStore,
		BalanceLedger:  balance,
		Budget:         &stubBudget{},
		PriceCache:     priceCache,
		Notifier:       newStubNotifier(),
		PairFetcher:    nil,
		Multiplexer:    nil,
	}
}

type stubPrices struct{}

func (stubPrices) GetPrice(ctx context.Context, mint string, pc pricecache.Context) (decimal.Decimal, error) {
	return decimal.NewFromFloat(1.0), nil
}

func solanaTestSigner(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate test signer: %v", err)
	}
	return key
}

func TestStartTransitionsThroughLifecycleAndStopsOnCancel(t *testing.T) {
	deps := testDeps(t)
	cfg := orchestrator.DefaultConfig()
	cfg.ScanInterval = 5 * time.Millisecond
	cfg.StatusInterval = 5 * time.Millisecond
	cfg.ShutdownGrace = 100 * time.Millisecond

	o := orchestrator.New(zap.NewNop(), cfg, deps)
	if o.State() != orchestrator.StateInit {
		t.Fatalf("expected initial state INIT, got %s", o.State())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := o.Start(ctx); err != nil {
			t.Errorf("Start returned error: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Start to return after context cancellation and the shutdown grace window")
	}

	if o.State() != orchestrator.StateStopping {
		t.Fatalf("expected final state STOPPING, got %s", o.State())
	}

	notifier := deps.Notifier.(*stubNotifier)
	if len(notifier.general) == 0 {
		t.Fatal("expected at least one general alert across the lifecycle")
	}
	if len(notifier.statuses) == 0 {
		t.Fatal("expected at least one status update from the periodic status job")
	}
}

func TestSubscribeNewPoolsNoOpsWithoutMultiplexer(t *testing.T) {
	deps := testDeps(t)
	o := orchestrator.New(zap.NewNop(), orchestrator.DefaultConfig(), deps)

	unsubscribe, err := o.SubscribeNewPools(context.Background(), solana.PublicKey{}, "")
	if err != nil {
		t.Fatalf("expected no error with a nil multiplexer, got %v", err)
	}
	unsubscribe() // must not panic
}

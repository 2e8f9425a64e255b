package positionmgr_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/executor"
	"github.com/atlas-desktop/solana-sniper/internal/pricecache"
	"github.com/atlas-desktop/solana-sniper/internal/positionmgr"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubStore struct {
	positions []types.Position
	removed   []string
}

func (s *stubStore) Positions(ctx context.Context) ([]types.Position, error) {
	return s.positions, nil
}

func (s *stubStore) RemoveEntryPrice(mint string) error {
	s.removed = append(s.removed, mint)
	return nil
}

type stubPrices struct {
	price decimal.Decimal
}

func (s *stubPrices) GetPrice(ctx context.Context, mint string, pc pricecache.Context) (decimal.Decimal, error) {
	return s.price, nil
}

type stubSeller struct {
	calls int
}

func (s *stubSeller) Sell(ctx context.Context, tokenMint string, rawAmount uint64, opts executor.Opts) (types.ExecutionResult, error) {
	s.calls++
	return types.ExecutionResult{Success: true, Signature: "sig", OutAmount: decimal.NewFromFloat(0.5)}, nil
}

type stubLearner struct {
	outcomes []types.TradeOutcome
}

func (s *stubLearner) RecordOutcome(ctx context.Context, outcome types.TradeOutcome) {
	s.outcomes = append(s.outcomes, outcome)
}

func (s *stubLearner) PatternStats(pattern string) (types.PatternStats, bool) {
	return types.PatternStats{}, false
}

func newPosition(mint string, entry decimal.Decimal) types.Position {
	e := entry
	return types.Position{Mint: mint, Amount: decimal.NewFromInt(1000), Decimals: 6, EntryPrice: &e, OpenedAt: time.Now()}
}

func TestTakeProfitSellsAtTarget(t *testing.T) {
	store := &stubStore{positions: []types.Position{newPosition("MintA", decimal.NewFromFloat(1.0))}}
	prices := &stubPrices{price: decimal.NewFromFloat(1.03)} // +3%, above the 2% default target
	seller := &stubSeller{}
	learner := &stubLearner{}

	cfg := positionmgr.DefaultConfig()
	cfg.TPInterval = 5 * time.Millisecond
	cfg.SLInterval = time.Hour
	m := positionmgr.New(zap.NewNop(), cfg, store, prices, seller, learner, nil, nil)
	m.RecordEntry("MintA", positionmgr.EntryContext{Pattern: "PINBAR"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	if seller.calls == 0 {
		t.Fatal("expected the take-profit timer to submit a sell once the target is reached")
	}
}

func TestStopLossSellsBelowFloor(t *testing.T) {
	store := &stubStore{positions: []types.Position{newPosition("MintB", decimal.NewFromFloat(1.0))}}
	prices := &stubPrices{price: decimal.NewFromFloat(0.8)} // -20%, below the 15% default stop
	seller := &stubSeller{}
	learner := &stubLearner{}

	cfg := positionmgr.DefaultConfig()
	cfg.SLInterval = 5 * time.Millisecond
	cfg.TPInterval = time.Hour
	m := positionmgr.New(zap.NewNop(), cfg, store, prices, seller, learner, nil, nil)
	m.RecordEntry("MintB", positionmgr.EntryContext{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	if seller.calls == 0 {
		t.Fatal("expected the stop-loss timer to submit a sell")
	}
	if len(store.removed) == 0 {
		t.Fatal("expected the entry price to be removed after the sell")
	}
	if len(learner.outcomes) == 0 {
		t.Fatal("expected the learner to receive the closed trade outcome")
	}
}

func TestEmergencyExitOverridesNormalTargets(t *testing.T) {
	store := &stubStore{positions: []types.Position{newPosition("MintC", decimal.NewFromFloat(1.0))}}
	prices := &stubPrices{price: decimal.NewFromFloat(1.80)} // +80%, above the +75% emergency threshold
	seller := &stubSeller{}
	learner := &stubLearner{}

	cfg := positionmgr.DefaultConfig()
	cfg.TPInterval = 5 * time.Millisecond
	cfg.SLInterval = time.Hour
	m := positionmgr.New(zap.NewNop(), cfg, store, prices, seller, learner, nil, nil)
	m.RecordEntry("MintC", positionmgr.EntryContext{TargetPct: decimal.NewFromInt(200)}) // target far above current gain

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	if seller.calls == 0 {
		t.Fatal("expected the emergency exit to fire despite the unmet take-profit target")
	}
}

package executor_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/agenterrors"
	"github.com/atlas-desktop/solana-sniper/internal/balanceledger"
	"github.com/atlas-desktop/solana-sniper/internal/chain"
	"github.com/atlas-desktop/solana-sniper/internal/executor"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubAggregator struct {
	quote          types.QuoteResponse
	quoteErr       error
	swap           types.SwapResponse
	swapErr        error
	quoteCallCount int
}

func (s *stubAggregator) Quote(ctx context.Context, inputMint, outputMint string, amountLamports uint64, slippageBps int) (types.QuoteResponse, error) {
	s.quoteCallCount++
	if s.quoteErr != nil {
		return types.QuoteResponse{}, s.quoteErr
	}
	return s.quote, nil
}

func (s *stubAggregator) BuildSwap(ctx context.Context, quote types.QuoteResponse, userPubkey string) (types.SwapResponse, error) {
	if s.swapErr != nil {
		return types.SwapResponse{}, s.swapErr
	}
	return s.swap, nil
}

type stubBalance struct {
	balance decimal.Decimal
	recorded []balanceledger.TxKind
}

func (s *stubBalance) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return s.balance, nil
}

func (s *stubBalance) RecordTx(ctx context.Context, kind balanceledger.TxKind, amount, fee decimal.Decimal) error {
	s.recorded = append(s.recorded, kind)
	return nil
}

type stubChain struct {
	sig       solana.Signature
	confirmed bool
}

func (s *stubChain) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return s.sig, nil
}

func (s *stubChain) ConfirmTransaction(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	s.confirmed = true
	return nil
}

func (s *stubChain) GetParsedTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]chain.TokenAccount, error) {
	return nil, nil
}

func testSigner() solana.PrivateKey {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		panic(err)
	}
	return key
}

func TestExecuteDryRunReturnsCostProjectionWithoutSubmitting(t *testing.T) {
	agg := &stubAggregator{quote: types.QuoteResponse{
		OutAmount:      "1000000",
		PriceImpactPct: decimal.NewFromFloat(1.5),
	}}
	bal := &stubBalance{balance: decimal.NewFromInt(5)}
	ch := &stubChain{}

	e := executor.New(zap.NewNop(), executor.DefaultConfig(), agg, ch, bal, testSigner())

	result, err := e.Execute(context.Background(), executor.WrappedSOLMint, decimal.NewFromFloat(0.5), executor.Opts{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || !result.DryRun {
		t.Fatalf("expected a successful dry-run result, got %+v", result)
	}
	if ch.confirmed {
		t.Fatal("dry run must not confirm any transaction")
	}
	if len(bal.recorded) != 0 {
		t.Fatal("dry run must not record a balance ledger entry")
	}
}

func TestExecuteRejectsExcessPriceImpact(t *testing.T) {
	agg := &stubAggregator{quote: types.QuoteResponse{
		OutAmount:      "1000000",
		PriceImpactPct: decimal.NewFromInt(10),
	}}
	bal := &stubBalance{balance: decimal.NewFromInt(5)}
	ch := &stubChain{}

	e := executor.New(zap.NewNop(), executor.DefaultConfig(), agg, ch, bal, testSigner())

	result, err := e.Execute(context.Background(), executor.WrappedSOLMint, decimal.NewFromFloat(0.5), executor.Opts{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected rejection for price impact above the configured maximum")
	}
}

func TestExecuteRejectsInsufficientBalance(t *testing.T) {
	agg := &stubAggregator{quote: types.QuoteResponse{OutAmount: "1000000"}}
	bal := &stubBalance{balance: decimal.NewFromFloat(0.001)}
	ch := &stubChain{}

	e := executor.New(zap.NewNop(), executor.DefaultConfig(), agg, ch, bal, testSigner())

	_, err := e.Execute(context.Background(), executor.WrappedSOLMint, decimal.NewFromFloat(0.5), executor.Opts{})
	if err == nil {
		t.Fatal("expected an insufficient-balance error")
	}
	if kind, ok := agenterrors.KindOf(err); !ok || kind != agenterrors.InsufficientBalance {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
}

func TestExecuteEnforcesRateLimit(t *testing.T) {
	agg := &stubAggregator{quote: types.QuoteResponse{OutAmount: "1000000"}}
	bal := &stubBalance{balance: decimal.NewFromInt(5)}
	ch := &stubChain{}

	cfg := executor.DefaultConfig()
	cfg.MaxTxPerMin = 1
	e := executor.New(zap.NewNop(), cfg, agg, ch, bal, testSigner())

	if _, err := e.Execute(context.Background(), executor.WrappedSOLMint, decimal.NewFromFloat(0.1), executor.Opts{DryRun: true}); err != nil {
		t.Fatalf("first call should be admitted: %v", err)
	}
	_, err := e.Execute(context.Background(), executor.WrappedSOLMint, decimal.NewFromFloat(0.1), executor.Opts{DryRun: true})
	if err == nil {
		t.Fatal("expected the second call within the same window to be rate-limited")
	}
	if kind, ok := agenterrors.KindOf(err); !ok || kind != agenterrors.RateLimited {
		t.Fatalf("expected RateLimited, got %v", err)
	}
}

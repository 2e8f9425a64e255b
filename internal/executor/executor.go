// Package executor is the Executor of 4.M: it validates and rate-limits
// every submission, gets a quote from the DEX aggregator, rejects on
// excess price impact, and either returns a dry-run cost projection or
// signs, sends, and confirms the swap on-chain.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/agenterrors"
	"github.com/atlas-desktop/solana-sniper/internal/balanceledger"
	"github.com/atlas-desktop/solana-sniper/internal/chain"
	"github.com/atlas-desktop/solana-sniper/pkg/solutils"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config tunes the executor's rate limit, safety floors, and retry policy.
type Config struct {
	MaxTxPerMin              int
	MinBalanceSOL            decimal.Decimal
	MaxPriceImpactPct        decimal.Decimal
	MaxRetries               int
	RetryBaseDelay           time.Duration
	RetryMaxDelay            time.Duration
	RetryMultiplier          float64
	ConfirmTimeout           time.Duration
	SlippageBps              int
	MinRoundTripProfitPct    decimal.Decimal
	MultiInputScoreMarginPct decimal.Decimal
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxTxPerMin:              5,
		MinBalanceSOL:            decimal.NewFromFloat(0.01),
		MaxPriceImpactPct:        decimal.NewFromInt(5),
		MaxRetries:               3,
		RetryBaseDelay:           500 * time.Millisecond,
		RetryMaxDelay:            10 * time.Second,
		RetryMultiplier:          2.0,
		ConfirmTimeout:           60 * time.Second,
		SlippageBps:              100,
		MinRoundTripProfitPct:    decimal.NewFromInt(1),
		MultiInputScoreMarginPct: decimal.NewFromInt(5),
	}
}

// BalanceSource is the minimal Balance Ledger dependency.
type BalanceSource interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	RecordTx(ctx context.Context, kind balanceledger.TxKind, amount, fee decimal.Decimal) error
}

// ChainSubmitter is the minimal chain dependency for signing/sending.
type ChainSubmitter interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature, timeout time.Duration) error
	GetParsedTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]chain.TokenAccount, error)
}

// Executor submits swaps and reports their on-chain or simulated outcome.
type Executor struct {
	logger     *zap.Logger
	cfg        Config
	aggregator Aggregator
	chain      ChainSubmitter
	balance    BalanceSource
	signer     solana.PrivateKey
	owner      solana.PublicKey

	mu      sync.Mutex
	sendLog []time.Time
}

// New constructs an Executor.
func New(logger *zap.Logger, cfg Config, aggregator Aggregator, chainClient ChainSubmitter, balance BalanceSource, signer solana.PrivateKey) *Executor {
	return &Executor{
		logger:     logger.Named("executor"),
		cfg:        cfg,
		aggregator: aggregator,
		chain:      chainClient,
		balance:    balance,
		signer:     signer,
		owner:      signer.PublicKey(),
	}
}

// Opts controls a single Execute call.
type Opts struct {
	DryRun bool
}

// Execute buys targetMint with solAmount SOL, following the documented
// validate -> rate-limit -> balance -> quote -> impact-check -> dry-run-or-
// submit pipeline.
func (e *Executor) Execute(ctx context.Context, targetMint string, solAmount decimal.Decimal, opts Opts) (types.ExecutionResult, error) {
	mint, err := solana.PublicKeyFromBase58(targetMint)
	if err != nil {
		return types.ExecutionResult{}, agenterrors.New(agenterrors.ValidationFailed, "executor", fmt.Errorf("invalid target mint: %w", err))
	}

	if !e.admitSend() {
		return types.ExecutionResult{}, agenterrors.New(agenterrors.RateLimited, "executor", fmt.Errorf("exceeded %d tx/min", e.cfg.MaxTxPerMin))
	}

	balance, err := e.balance.GetBalance(ctx)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if balance.LessThan(e.cfg.MinBalanceSOL.Add(solAmount)) {
		return types.ExecutionResult{}, agenterrors.New(agenterrors.InsufficientBalance, "executor", fmt.Errorf("balance %s below required %s", balance, e.cfg.MinBalanceSOL.Add(solAmount)))
	}

	lamports := solToLamports(solAmount)
	quote, err := e.quoteWithRetry(ctx, WrappedSOLMint, mint.String(), lamports)
	if err != nil {
		return types.ExecutionResult{}, err
	}

	if quote.PriceImpactPct.GreaterThan(e.cfg.MaxPriceImpactPct) {
		return types.ExecutionResult{
			Success: false,
			Reason:  fmt.Sprintf("price impact %s%% exceeds max %s%%", quote.PriceImpactPct, e.cfg.MaxPriceImpactPct),
		}, nil
	}

	estimatedFee := decimal.NewFromFloat(0.000005) // one signature, base fee estimate
	priceImpactLoss := solAmount.Mul(quote.PriceImpactPct).Div(decimal.NewFromInt(100))
	totalCost := estimatedFee.Add(priceImpactLoss)
	costPercent := decimal.Zero
	if !solAmount.IsZero() {
		costPercent = totalCost.Div(solAmount).Mul(decimal.NewFromInt(100))
	}

	if opts.DryRun {
		return types.ExecutionResult{
			Success:         true,
			DryRun:          true,
			OutAmount:       parseOutAmount(quote.OutAmount),
			EstimatedFee:    estimatedFee,
			PriceImpactPct:  quote.PriceImpactPct,
			PriceImpactLoss: priceImpactLoss,
			TotalCost:       totalCost,
			CostPercent:     costPercent,
		}, nil
	}

	swap, err := e.aggregator.BuildSwap(ctx, quote, e.owner.String())
	if err != nil {
		return types.ExecutionResult{}, err
	}

	sig, err := e.signAndSubmit(ctx, swap)
	if err != nil {
		return types.ExecutionResult{}, err
	}

	if err := e.chain.ConfirmTransaction(ctx, sig, e.cfg.ConfirmTimeout); err != nil {
		return types.ExecutionResult{}, err
	}

	if err := e.balance.RecordTx(ctx, balanceledger.TxBuy, solAmount, estimatedFee); err != nil {
		e.logger.Warn("failed to record buy against the balance ledger", zap.Error(err))
	}

	return types.ExecutionResult{
		Success:         true,
		Signature:       sig.String(),
		OutAmount:       parseOutAmount(quote.OutAmount),
		EstimatedFee:    estimatedFee,
		PriceImpactPct:  quote.PriceImpactPct,
		PriceImpactLoss: priceImpactLoss,
		TotalCost:       totalCost,
		CostPercent:     costPercent,
	}, nil
}

// Sell quotes and, unless opts.DryRun, submits a tokenMint -> SOL swap for
// the given raw token amount, rejecting on excess price impact exactly like
// Execute does on the buy side. The Position Manager calls this for both
// take-profit and stop-loss exits.
func (e *Executor) Sell(ctx context.Context, tokenMint string, rawAmount uint64, opts Opts) (types.ExecutionResult, error) {
	if _, err := solana.PublicKeyFromBase58(tokenMint); err != nil {
		return types.ExecutionResult{}, agenterrors.New(agenterrors.ValidationFailed, "executor", fmt.Errorf("invalid token mint: %w", err))
	}

	if !e.admitSend() {
		return types.ExecutionResult{}, agenterrors.New(agenterrors.RateLimited, "executor", fmt.Errorf("exceeded %d tx/min", e.cfg.MaxTxPerMin))
	}

	quote, err := e.quoteWithRetry(ctx, tokenMint, WrappedSOLMint, rawAmount)
	if err != nil {
		return types.ExecutionResult{}, err
	}

	if quote.PriceImpactPct.GreaterThan(e.cfg.MaxPriceImpactPct) {
		return types.ExecutionResult{
			Success: false,
			Reason:  fmt.Sprintf("price impact %s%% exceeds max %s%%", quote.PriceImpactPct, e.cfg.MaxPriceImpactPct),
		}, nil
	}

	outSOL := lamportsToSOL(parseOutAmountUint(quote.OutAmount))
	if opts.DryRun {
		return types.ExecutionResult{Success: true, DryRun: true, OutAmount: outSOL, PriceImpactPct: quote.PriceImpactPct}, nil
	}
	if outSOL.LessThan(decimal.NewFromFloat(0.001)) {
		return types.ExecutionResult{Success: false, Reason: "estimated SOL out below the 0.001 minimum"}, nil
	}

	swap, err := e.aggregator.BuildSwap(ctx, quote, e.owner.String())
	if err != nil {
		return types.ExecutionResult{}, err
	}
	sig, err := e.signAndSubmit(ctx, swap)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if err := e.chain.ConfirmTransaction(ctx, sig, e.cfg.ConfirmTimeout); err != nil {
		return types.ExecutionResult{}, err
	}
	if err := e.balance.RecordTx(ctx, balanceledger.TxSell, outSOL, decimal.Zero); err != nil {
		e.logger.Warn("failed to record sell against the balance ledger", zap.Error(err))
	}

	return types.ExecutionResult{
		Success:        true,
		Signature:      sig.String(),
		OutAmount:      outSOL,
		PriceImpactPct: quote.PriceImpactPct,
	}, nil
}

// ExecuteRoundTrip previews A->T then T->A using the first leg's
// conservative output as the second leg's input size, rejecting when the
// net percentage falls below MinRoundTripProfitPct; otherwise it executes
// both legs sequentially, sizing the second leg from the chain's view of
// the intermediate token balance.
func (e *Executor) ExecuteRoundTrip(ctx context.Context, targetMint string, solAmount decimal.Decimal) (types.ExecutionResult, error) {
	mint, err := solana.PublicKeyFromBase58(targetMint)
	if err != nil {
		return types.ExecutionResult{}, agenterrors.New(agenterrors.ValidationFailed, "executor", fmt.Errorf("invalid target mint: %w", err))
	}

	lamports := solToLamports(solAmount)
	legOut, err := e.quoteWithRetry(ctx, WrappedSOLMint, mint.String(), lamports)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	conservativeOutLamports := parseOutAmountUint(legOut.OtherAmountThreshold)

	legBack, err := e.quoteWithRetry(ctx, mint.String(), WrappedSOLMint, conservativeOutLamports)
	if err != nil {
		return types.ExecutionResult{}, err
	}

	outSOL := lamportsToSOL(parseOutAmountUint(legBack.OutAmount))
	netPct := outSOL.Sub(solAmount).Div(solAmount).Mul(decimal.NewFromInt(100))
	if netPct.LessThan(e.cfg.MinRoundTripProfitPct) {
		return types.ExecutionResult{
			Success: false,
			Reason:  fmt.Sprintf("round trip net %s%% below minimum %s%%", netPct, e.cfg.MinRoundTripProfitPct),
		}, nil
	}

	firstLeg, err := e.Execute(ctx, targetMint, solAmount, Opts{})
	if err != nil || !firstLeg.Success {
		return firstLeg, err
	}

	accounts, err := e.chain.GetParsedTokenAccountsByOwner(ctx, e.owner)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	heldAmount := uint64(0)
	for _, acc := range accounts {
		if acc.Mint == mint.String() {
			heldAmount = acc.Amount
			break
		}
	}
	if heldAmount == 0 {
		return types.ExecutionResult{}, agenterrors.New(agenterrors.ValidationFailed, "executor", fmt.Errorf("no intermediate token balance found for leg 2"))
	}

	secondQuote, err := e.quoteWithRetry(ctx, mint.String(), WrappedSOLMint, heldAmount)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	swap, err := e.aggregator.BuildSwap(ctx, secondQuote, e.owner.String())
	if err != nil {
		return types.ExecutionResult{}, err
	}
	sig, err := e.signAndSubmit(ctx, swap)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if err := e.chain.ConfirmTransaction(ctx, sig, e.cfg.ConfirmTimeout); err != nil {
		return types.ExecutionResult{}, err
	}
	if err := e.balance.RecordTx(ctx, balanceledger.TxSell, lamportsToSOL(parseOutAmountUint(secondQuote.OutAmount)), decimal.Zero); err != nil {
		e.logger.Warn("failed to record round-trip sell against the balance ledger", zap.Error(err))
	}

	return types.ExecutionResult{
		Success:        true,
		Signature:      sig.String(),
		OutAmount:      parseOutAmount(secondQuote.OutAmount),
		PriceImpactPct: secondQuote.PriceImpactPct,
	}, nil
}

// HeldToken is a non-stable token balance a multi-input swap may draw from.
type HeldToken struct {
	Mint   string
	Amount uint64
	Score  decimal.Decimal // weighted output score, already computed by the caller
}

// ExecuteMultiInput swaps from whichever held non-stable token scores more
// than MultiInputScoreMarginPct above the plain SOL-input score.
func (e *Executor) ExecuteMultiInput(ctx context.Context, targetMint string, solInputScore decimal.Decimal, candidates []HeldToken, solAmount decimal.Decimal) (types.ExecutionResult, error) {
	hundred := decimal.NewFromInt(100)
	threshold := solInputScore.Mul(hundred.Add(e.cfg.MultiInputScoreMarginPct)).Div(hundred)
	var best *HeldToken
	for i := range candidates {
		c := candidates[i]
		if c.Score.GreaterThan(threshold) && (best == nil || c.Score.GreaterThan(best.Score)) {
			best = &candidates[i]
		}
	}
	if best == nil {
		return e.Execute(ctx, targetMint, solAmount, Opts{})
	}

	quote, err := e.quoteWithRetry(ctx, best.Mint, targetMint, best.Amount)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	swap, err := e.aggregator.BuildSwap(ctx, quote, e.owner.String())
	if err != nil {
		return types.ExecutionResult{}, err
	}
	sig, err := e.signAndSubmit(ctx, swap)
	if err != nil {
		return types.ExecutionResult{}, err
	}
	if err := e.chain.ConfirmTransaction(ctx, sig, e.cfg.ConfirmTimeout); err != nil {
		return types.ExecutionResult{}, err
	}
	return types.ExecutionResult{
		Success:        true,
		Signature:      sig.String(),
		OutAmount:      parseOutAmount(quote.OutAmount),
		PriceImpactPct: quote.PriceImpactPct,
	}, nil
}

func (e *Executor) quoteWithRetry(ctx context.Context, inputMint, outputMint string, amountLamports uint64) (types.QuoteResponse, error) {
	return solutils.Retry(func(attempt int) (types.QuoteResponse, error) {
		quote, err := e.aggregator.Quote(ctx, inputMint, outputMint, amountLamports, e.cfg.SlippageBps)
		if err != nil {
			if kind, ok := agenterrors.KindOf(err); ok && (kind == agenterrors.NetworkTransient || kind == agenterrors.AggregatorError) {
				return types.QuoteResponse{}, err
			}
			return types.QuoteResponse{}, err
		}
		return quote, nil
	}, solutils.RetryConfig{MaxAttempts: e.cfg.MaxRetries, InitialDelay: e.cfg.RetryBaseDelay, MaxDelay: e.cfg.RetryMaxDelay, Multiplier: e.cfg.RetryMultiplier})
}

func (e *Executor) signAndSubmit(ctx context.Context, swap types.SwapResponse) (solana.Signature, error) {
	tx, err := decodeTransaction(swap.SwapTransaction)
	if err != nil {
		return solana.Signature{}, agenterrors.New(agenterrors.ValidationFailed, "executor", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(e.owner) {
			return &e.signer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, agenterrors.New(agenterrors.ValidationFailed, "executor", fmt.Errorf("sign transaction: %w", err))
	}

	var sig solana.Signature
	_, err = solutils.Retry(func(attempt int) (struct{}, error) {
		s, sendErr := e.chain.SendTransaction(ctx, tx)
		if sendErr != nil {
			return struct{}{}, sendErr
		}
		sig = s
		return struct{}{}, nil
	}, solutils.RetryConfig{MaxAttempts: e.cfg.MaxRetries, InitialDelay: e.cfg.RetryBaseDelay, MaxDelay: e.cfg.RetryMaxDelay, Multiplier: e.cfg.RetryMultiplier})
	if err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}

// admitSend enforces the sliding one-minute send-rate window.
func (e *Executor) admitSend() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := time.Now().Add(-time.Minute)
	kept := e.sendLog[:0]
	for _, t := range e.sendLog {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.sendLog = kept
	if len(e.sendLog) >= e.cfg.MaxTxPerMin {
		return false
	}
	e.sendLog = append(e.sendLog, time.Now())
	return true
}

func solToLamports(sol decimal.Decimal) uint64 {
	lamports := sol.Mul(decimal.NewFromInt(1_000_000_000))
	return uint64(lamports.IntPart())
}

func lamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(lamports)).Div(decimal.NewFromInt(1_000_000_000))
}

func parseOutAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseOutAmountUint(s string) uint64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return uint64(d.IntPart())
}

// decodeTransaction decodes the aggregator's base64-encoded versioned
// transaction into a signable solana.Transaction.
func decodeTransaction(base64Tx string) (*solana.Transaction, error) {
	return solana.TransactionFromBase64(base64Tx)
}

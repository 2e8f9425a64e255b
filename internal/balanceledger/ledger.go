// Package balanceledger holds the authoritative local SOL balance,
// reconciled against the chain after every transaction and periodically.
package balanceledger

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	reconcileThreshold = 0.0001 // SOL
	forceVerifyAfter   = 120 * time.Second
	periodicInterval   = 60 * time.Second
	warnAfterDiscrepancies = 3
)

var lamportsPerSOL = decimal.NewFromInt(1_000_000_000)

// ChainBalanceReader is the minimal chain dependency: a fresh lamport
// balance read, gated by the budget governor upstream.
type ChainBalanceReader interface {
	GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error)
}

// TxKind distinguishes the three ledger-mutating transaction kinds.
type TxKind string

const (
	TxBuy TxKind = "buy"
	TxSell TxKind = "sell"
	TxFee TxKind = "fee"
)

// Ledger is the Balance Ledger of 4.E.
type Ledger struct {
	logger *zap.Logger
	chain  ChainBalanceReader
	owner  solana.PublicKey

	mu                 sync.Mutex
	balance            decimal.Decimal
	lastVerify         time.Time
	verifyInProgress   bool
	discrepancyCount   int
	stopCh             chan struct{}
}

// New initializes the Ledger with one fresh RPC call for the starting
// balance.
func New(ctx context.Context, logger *zap.Logger, chain ChainBalanceReader, owner solana.PublicKey) (*Ledger, error) {
	lamports, err := chain.GetBalance(ctx, owner)
	if err != nil {
		return nil, err
	}
	l := &Ledger{
		logger:     logger.Named("balanceledger"),
		chain:      chain,
		owner:      owner,
		balance:    lamportsToSOL(lamports),
		lastVerify: time.Now(),
		stopCh:     make(chan struct{}),
	}
	return l, nil
}

func lamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromInt(int64(lamports)).Div(lamportsPerSOL)
}

// RunPeriodicVerify blocks, calling verify("periodic") every 60s until ctx
// is cancelled. Intended to run as its own goroutine/task.
func (l *Ledger) RunPeriodicVerify(ctx context.Context) {
	ticker := time.NewTicker(periodicInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.verify(ctx, "periodic"); err != nil {
				l.logger.Warn("periodic balance verify failed", zap.Error(err))
			}
		}
	}
}

// Stop terminates RunPeriodicVerify.
func (l *Ledger) Stop() { close(l.stopCh) }

// RecordTx adjusts the local total for a confirmed transaction and triggers
// a post-tx verify.
func (l *Ledger) RecordTx(ctx context.Context, kind TxKind, amount, fee decimal.Decimal) error {
	l.mu.Lock()
	switch kind {
	case TxBuy:
		l.balance = l.balance.Sub(amount).Sub(fee)
	case TxSell:
		l.balance = l.balance.Add(amount).Sub(fee)
	case TxFee:
		l.balance = l.balance.Sub(fee)
	}
	l.mu.Unlock()
	return l.verify(ctx, "post-tx")
}

// verify compares the local value to the RPC value, correcting on
// divergence beyond the threshold. A verify-in-progress flag prevents
// concurrent verifies from racing each other.
func (l *Ledger) verify(ctx context.Context, reason string) error {
	l.mu.Lock()
	if l.verifyInProgress {
		l.mu.Unlock()
		return nil
	}
	l.verifyInProgress = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.verifyInProgress = false
		l.mu.Unlock()
	}()

	lamports, err := l.chain.GetBalance(ctx, l.owner)
	if err != nil {
		return err
	}
	rpcBalance := lamportsToSOL(lamports)

	l.mu.Lock()
	defer l.mu.Unlock()
	delta := l.balance.Sub(rpcBalance).Abs()
	if delta.GreaterThan(decimal.NewFromFloat(reconcileThreshold)) {
		l.logger.Info("balance ledger corrected",
			zap.String("reason", reason),
			zap.String("local", l.balance.String()),
			zap.String("rpc", rpcBalance.String()))
		l.balance = rpcBalance
		l.discrepancyCount++
		if l.discrepancyCount > warnAfterDiscrepancies {
			l.logger.Warn("repeated balance discrepancies detected",
				zap.Int("count", l.discrepancyCount))
		}
	}
	l.lastVerify = time.Now()
	return nil
}

// GetBalance returns the ledger's current value, forcing a fresh verify
// first if more than FORCE_VERIFY_AFTER has elapsed since the last one.
func (l *Ledger) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	l.mu.Lock()
	stale := time.Since(l.lastVerify) > forceVerifyAfter
	l.mu.Unlock()

	if stale {
		if err := l.verify(ctx, "forced-stale"); err != nil {
			l.logger.Warn("forced verify failed, serving last known balance", zap.Error(err))
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

// DiscrepancyCount returns how many corrections have occurred since start.
func (l *Ledger) DiscrepancyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.discrepancyCount
}

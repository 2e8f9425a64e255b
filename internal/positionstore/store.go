// Package positionstore caches the parsed token-account view of the
// agent's holdings and persists entry prices, which the chain has no
// memory of, to a JSON file.
package positionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/chain"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const cacheTTL = 5 * time.Minute

// BudgetDecliner lets the store ask whether an RPC refresh is currently
// permitted, without importing the budget package directly.
type BudgetDecliner interface {
	MayCall(method string) bool
}

// Store is the Position Store of 4.F.
type Store struct {
	logger  *zap.Logger
	gov     BudgetDecliner
	refresh func(ctx context.Context) ([]chain.TokenAccount, error)
	path    string

	mu          sync.Mutex
	accounts    map[string]chain.TokenAccount
	lastRefresh time.Time
	entryPrices map[string]decimal.Decimal
	openedAt    map[string]time.Time
}

// New constructs a Store. refresh fetches the current token-account list;
// entryPricePath is where the mint->entry_price map is persisted.
func New(logger *zap.Logger, gov BudgetDecliner, refresh func(ctx context.Context) ([]chain.TokenAccount, error), entryPricePath string) (*Store, error) {
	s := &Store{
		logger:      logger.Named("positionstore"),
		gov:         gov,
		refresh:     refresh,
		path:        entryPricePath,
		accounts:    make(map[string]chain.TokenAccount),
		entryPrices: make(map[string]decimal.Decimal),
		openedAt:    make(map[string]time.Time),
	}
	if err := s.loadEntryPrices(); err != nil {
		return nil, fmt.Errorf("load entry prices: %w", err)
	}
	return s, nil
}

func (s *Store) loadEntryPrices() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	raw := map[string]string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for mint, priceStr := range raw {
		p, err := decimal.NewFromString(priceStr)
		if err != nil {
			continue
		}
		s.entryPrices[mint] = p
	}
	return nil
}

func (s *Store) persistEntryPrices() error {
	raw := make(map[string]string, len(s.entryPrices))
	for mint, p := range s.entryPrices {
		raw[mint] = p.String()
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Positions returns every held position with non-zero amount, merging the
// cached token-account view with the persisted entry prices.
func (s *Store) Positions(ctx context.Context) ([]types.Position, error) {
	s.maybeRefresh(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Position, 0, len(s.accounts))
	for mint, acc := range s.accounts {
		if acc.Amount == 0 {
			continue
		}
		pos := types.Position{
			Mint:     mint,
			Amount:   decimal.NewFromInt(int64(acc.Amount)),
			Decimals: int(acc.Decimals),
			OpenedAt: s.openedAt[mint],
		}
		if ep, ok := s.entryPrices[mint]; ok {
			epCopy := ep
			pos.EntryPrice = &epCopy
		}
		out = append(out, pos)
	}
	return out, nil
}

func (s *Store) maybeRefresh(ctx context.Context) {
	s.mu.Lock()
	fresh := time.Since(s.lastRefresh) < cacheTTL
	s.mu.Unlock()
	if fresh {
		return
	}
	if !s.gov.MayCall("getParsedTokenAccountsByOwner") {
		s.logger.Debug("budget declined position refresh, serving cache")
		return
	}
	accounts, err := s.refresh(ctx)
	if err != nil {
		s.logger.Warn("position refresh failed, serving cache", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]chain.TokenAccount, len(accounts))
	for _, a := range accounts {
		s.accounts[a.Mint] = a
		if _, ok := s.openedAt[a.Mint]; !ok {
			s.openedAt[a.Mint] = time.Now()
		}
	}
	s.lastRefresh = time.Now()
}

// RecordEntryPrice is written synchronously on every confirmed buy.
func (s *Store) RecordEntryPrice(mint string, price decimal.Decimal) error {
	s.mu.Lock()
	s.entryPrices[mint] = price
	s.openedAt[mint] = time.Now()
	err := s.persistEntryPrices()
	s.mu.Unlock()
	return err
}

// RemoveEntryPrice is written synchronously on every confirmed sell.
func (s *Store) RemoveEntryPrice(mint string) error {
	s.mu.Lock()
	delete(s.entryPrices, mint)
	delete(s.openedAt, mint)
	err := s.persistEntryPrices()
	s.mu.Unlock()
	return err
}

// EntryPrice returns the persisted entry price for mint, if known.
func (s *Store) EntryPrice(mint string) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entryPrices[mint]
	return p, ok
}

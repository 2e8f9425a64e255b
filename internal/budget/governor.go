// Package budget implements the RPC Budget Governor: a per-process
// singleton that gates every outbound chain RPC call behind a daily
// call budget with a rollover bank, persisted to a small JSON file.
package budget

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// burstRPS and burstSize bound issuance within any one-second window even
// when the daily budget has headroom — the daily counter alone can't stop a
// tight loop from hammering the RPC node in a burst.
const (
	burstRPS  = 10
	burstSize = 15
)

// Governor is the RPC Budget Governor described in 4.B: admission predicate
// calls_used < total_budget, daily rollover of unused budget up to MaxBank.
type Governor struct {
	logger  *zap.Logger
	path    string
	base    int
	maxBank int
	burst   *rate.Limiter

	mu           sync.Mutex
	state        types.BudgetState
	warnedToday  bool
}

// New constructs a Governor, loading any persisted state from path. If no
// state exists, today's bank starts at zero.
func New(logger *zap.Logger, path string, baseBudget, maxBank int) (*Governor, error) {
	g := &Governor{
		logger:  logger.Named("budget"),
		path:    path,
		base:    baseBudget,
		maxBank: maxBank,
		burst:   rate.NewLimiter(rate.Limit(burstRPS), burstSize),
	}
	if err := g.load(); err != nil {
		return nil, fmt.Errorf("load budget state: %w", err)
	}
	g.rollIfNeeded(time.Now().UTC())
	return g, nil
}

func (g *Governor) load() error {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			g.state = types.BudgetState{
				Date:        today(time.Now().UTC()),
				PerMethod:   map[string]int{},
				TotalBudget: g.base,
			}
			return nil
		}
		return err
	}
	var st types.BudgetState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.PerMethod == nil {
		st.PerMethod = map[string]int{}
	}
	g.state = st
	return nil
}

func (g *Governor) persist() error {
	data, err := json.MarshalIndent(g.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, g.path)
}

func today(t time.Time) string { return t.Format("2006-01-02") }

// rollIfNeeded must be called with g.mu unlocked; it acquires the lock
// itself so it is safe to call from New and from MayCall/Record.
func (g *Governor) rollIfNeeded(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollIfNeededLocked(now)
}

func (g *Governor) rollIfNeededLocked(now time.Time) {
	d := today(now)
	if g.state.Date == d {
		return
	}
	yesterdayUnused := g.state.TotalBudget - g.state.CallsUsed
	if yesterdayUnused < 0 {
		yesterdayUnused = 0
	}
	g.state.RolloverBank += yesterdayUnused
	if g.state.RolloverBank > g.maxBank {
		g.state.RolloverBank = g.maxBank
	}
	g.state.Date = d
	g.state.CallsUsed = 0
	g.state.PerMethod = map[string]int{}
	g.state.TotalBudget = g.base + g.state.RolloverBank
	g.warnedToday = false
	if err := g.persist(); err != nil {
		g.logger.Error("failed to persist rolled budget state", zap.Error(err))
	}
	g.logger.Info("budget rolled over",
		zap.String("date", d),
		zap.Int("rolloverBank", g.state.RolloverBank),
		zap.Int("totalBudget", g.state.TotalBudget))
}

// MayCall is the admission predicate: calls_used < total_budget, and the
// burst limiter has a token free this second. Callers must check this
// before issuing any RPC call.
func (g *Governor) MayCall(method string) bool {
	g.rollIfNeeded(time.Now().UTC())
	if !g.burst.Allow() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.CallsUsed < g.state.TotalBudget
}

// Record registers that method was just called. Must be invoked immediately
// after issuing the RPC, regardless of its outcome.
func (g *Governor) Record(method string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state.CallsUsed++
	g.state.PerMethod[method]++

	if !g.warnedToday && g.state.TotalBudget > 0 &&
		float64(g.state.CallsUsed) >= 0.8*float64(g.state.TotalBudget) {
		g.warnedToday = true
		g.logger.Warn("RPC budget at 80% for today",
			zap.Int("used", g.state.CallsUsed), zap.Int("total", g.state.TotalBudget))
	}
	if err := g.persist(); err != nil {
		g.logger.Error("failed to persist budget state", zap.Error(err))
	}
}

// Snapshot returns a copy of the current budget state.
func (g *Governor) Snapshot() types.BudgetState {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := g.state
	cp.PerMethod = make(map[string]int, len(g.state.PerMethod))
	for k, v := range g.state.PerMethod {
		cp.PerMethod[k] = v
	}
	return cp
}

// Exhausted reports whether calls_used has reached total_budget. cmd/agent
// checks it once at startup and exits when it is true; at run time MayCall
// refuses further calls instead.
func (g *Governor) Exhausted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.CallsUsed >= g.state.TotalBudget
}

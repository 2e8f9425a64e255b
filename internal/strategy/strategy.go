// Package strategy implements the Strategy Ensemble of 4.I: five variants
// behind a common Strategy interface, a registry, and a combiner with four
// modes.
package strategy

import (
	"sync"

	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Strategy is the contract every variant implements: analyse a token's
// enriched metrics (and any existing position) into a Signal.
type Strategy interface {
	Name() string
	Analyse(metrics types.MarketMetrics, existing *types.Position) types.Signal
}

// Registry holds the five built-in strategy variants plus any others
// registered at startup.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry constructs a Registry pre-populated with the five spec
// variants.
func NewRegistry(logger *zap.Logger, cfg Config) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(NewEmperorBTC(logger, cfg.EmperorBTC))
	r.Register(NewDCA(logger, cfg.DCA))
	r.Register(NewAntiMartingale(logger, cfg.AntiMartingale))
	r.Register(NewTrendReversal(logger, cfg.TrendReversal))
	r.Register(NewCandlestick(logger, cfg.Candlestick))
	return r
}

// Register adds or replaces a strategy under its own Name().
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name, if any.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// All returns every registered strategy, in a stable-enough order for
// ensemble combination (map iteration order is not guaranteed, so callers
// that need determinism should sort by Name()).
func (r *Registry) All() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	return out
}

// Names lists every registered strategy name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		out = append(out, n)
	}
	return out
}

// Config bundles every variant's tunables.
type Config struct {
	EmperorBTC     EmperorBTCConfig
	DCA            DCAConfig
	AntiMartingale AntiMartingaleConfig
	TrendReversal  TrendReversalConfig
	Candlestick    CandlestickConfig
}

// DefaultConfig returns the documented defaults for every variant.
func DefaultConfig() Config {
	return Config{
		EmperorBTC:     DefaultEmperorBTCConfig(),
		DCA:            DefaultDCAConfig(),
		AntiMartingale: DefaultAntiMartingaleConfig(),
		TrendReversal:  DefaultTrendReversalConfig(),
		Candlestick:    DefaultCandlestickConfig(),
	}
}

func clampConfidence(c decimal.Decimal) decimal.Decimal {
	if c.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if c.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return c
}

func hold(source, reason string) types.Signal {
	return types.Signal{Action: types.ActionHold, Confidence: decimal.Zero, Reason: reason, Source: source}
}

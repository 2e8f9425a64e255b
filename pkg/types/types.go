// Package types holds the shared data model for the sniper agent: the
// candidate/market/state shapes that flow from discovery through strategy,
// risk, learning, and execution.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide distinguishes a buy leg from a sell leg.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
	OrderSideFee  OrderSide = "fee"
)

// Action is what a strategy or combiner decided for a candidate.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Regime is the coarse market-trend classification feeding the learner's
// discretised state.
type Regime string

const (
	RegimeBull     Regime = "BULL"
	RegimeBear     Regime = "BEAR"
	RegimeSideways Regime = "SIDEWAYS"
	RegimeVolatile Regime = "VOLATILE"
)

// RVOLBucket discretises relative volume.
type RVOLBucket string

const (
	RVOLLow  RVOLBucket = "LOW"
	RVOLMed  RVOLBucket = "MED"
	RVOLHigh RVOLBucket = "HIGH"
)

// LiqBucket discretises liquidity in USD.
type LiqBucket string

const (
	LiqLow  LiqBucket = "LOW"
	LiqMed  LiqBucket = "MED"
	LiqHigh LiqBucket = "HIGH"
)

// BucketRVOL maps a raw RVOL reading to its bucket: LOW<2, MED<5, HIGH>=5.
func BucketRVOL(rvol decimal.Decimal) RVOLBucket {
	switch {
	case rvol.LessThan(decimal.NewFromInt(2)):
		return RVOLLow
	case rvol.LessThan(decimal.NewFromInt(5)):
		return RVOLMed
	default:
		return RVOLHigh
	}
}

// BucketLiquidity maps raw USD liquidity to its bucket: LOW<100k, MED<500k, HIGH>=500k.
func BucketLiquidity(liqUSD decimal.Decimal) LiqBucket {
	switch {
	case liqUSD.LessThan(decimal.NewFromInt(100_000)):
		return LiqLow
	case liqUSD.LessThan(decimal.NewFromInt(500_000)):
		return LiqMed
	default:
		return LiqHigh
	}
}

// Candidate is an immutable token-discovery snapshot. Produced by the
// discovery aggregator; consumed read-only by everything downstream.
type Candidate struct {
	Address            string          `json:"address"`
	DexID               string          `json:"dexId"`
	LiquidityUSD        decimal.Decimal `json:"liquidityUsd"`
	Volume24hUSD        decimal.Decimal `json:"volume24hUsd"`
	Volume1hUSD         decimal.Decimal `json:"volume1hUsd"`
	PriceUSD            decimal.Decimal `json:"priceUsd"`
	PriceChange24hPct   decimal.Decimal `json:"priceChange24hPct"`
	TxCounts            int             `json:"txCounts"`
	RugScore            *int            `json:"rugScore,omitempty"`
	DiscoveredAt        time.Time       `json:"discoveredAt"`
	Source              string          `json:"source"`
}

// MarketMetrics enriches a Candidate with derived technical readings.
type MarketMetrics struct {
	Candidate
	RVOL          decimal.Decimal  `json:"rvol"`
	RSI           *decimal.Decimal `json:"rsi,omitempty"`
	MACD          *decimal.Decimal `json:"macd,omitempty"`
	BollingerPct  *decimal.Decimal `json:"bollingerPct,omitempty"`
	AgeHours      decimal.Decimal  `json:"ageHours"`
	FDVToLiqRatio decimal.Decimal  `json:"fdvToLiqRatio"`
	BullishDivergence bool         `json:"bullishDivergence"`
}

// MarketState is the discretised triple consumed by the adaptive learner.
type MarketState struct {
	Regime    Regime     `json:"regime"`
	RVOL      RVOLBucket `json:"rvolBucket"`
	Liquidity LiqBucket  `json:"liqBucket"`
}

// Key renders the state as a stable map key, e.g. "BULL|MED|HIGH".
func (s MarketState) Key() string {
	return string(s.Regime) + "|" + string(s.RVOL) + "|" + string(s.Liquidity)
}

// PatternStats is the per-pattern aggregate the learner maintains.
//
// Invariants: Wins+Losses == Total; WinRate == Wins/Total; QValue clamped to
// [-1,1]; Regret is monotonically non-decreasing.
type PatternStats struct {
	Pattern     string          `json:"pattern"`
	QValue      decimal.Decimal `json:"qValue"`
	EMAWinRate  decimal.Decimal `json:"emaWinRate"`
	EMAProfit   decimal.Decimal `json:"emaProfit"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	Total       int             `json:"total"`
	Regret      decimal.Decimal `json:"regret"`
	Confidence  decimal.Decimal `json:"confidence"`
	LastSeen    time.Time       `json:"lastSeen"`
}

// WinRate returns Wins/Total, or zero when Total is zero.
func (p PatternStats) WinRate() decimal.Decimal {
	if p.Total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(p.Wins)).Div(decimal.NewFromInt(int64(p.Total)))
}

// StateAction is a Q-table row keyed by (state, pattern).
type StateAction struct {
	State     MarketState     `json:"state"`
	Pattern   string          `json:"pattern"`
	QValue    decimal.Decimal `json:"qValue"`
	Visits    int             `json:"visits"`
	EMAReward decimal.Decimal `json:"emaReward"`
}

// Key identifies the (state, pattern) row.
func (sa StateAction) Key() string {
	return sa.State.Key() + "|" + sa.Pattern
}

// TradeOutcome is the immutable record fed to the learner after a closed
// position.
type TradeOutcome struct {
	Token             string          `json:"token"`
	EntryPrice        decimal.Decimal `json:"entryPrice"`
	ExitPrice         decimal.Decimal `json:"exitPrice"`
	ProfitPct         decimal.Decimal `json:"profitPct"`
	HoldMinutes       decimal.Decimal `json:"holdMinutes"`
	Volume24h         decimal.Decimal `json:"volume24h"`
	Liquidity         decimal.Decimal `json:"liquidity"`
	RVOL              decimal.Decimal `json:"rvol"`
	Pattern           string          `json:"pattern,omitempty"`
	Regime            Regime          `json:"regime"`
	AIConfidence      decimal.Decimal `json:"aiConfidence"`
	Signals           []string        `json:"signals"`
	PositionSizePct   decimal.Decimal `json:"positionSizePct"`
	MaxDrawdown       decimal.Decimal `json:"maxDrawdown"`
	EnteredExtended   bool            `json:"enteredExtended"`
	Doublings         int             `json:"doublings"`
	ClosedAt          time.Time       `json:"closedAt"`
}

// Position is a held token inventory line. Amount is reconciled from the
// on-chain token-account view; EntryPrice is persisted separately because
// the chain has no memory of it.
type Position struct {
	Mint          string          `json:"mint"`
	Amount        decimal.Decimal `json:"amount"`
	Decimals      int             `json:"decimals"`
	EntryPrice    *decimal.Decimal `json:"entryPrice,omitempty"`
	MaxDrawdown   decimal.Decimal `json:"maxDrawdown"`
	DoublingCount int             `json:"doublingCount"`
	OpenedAt      time.Time       `json:"openedAt"`
}

// Signal is the output contract of every strategy variant and of the
// combiner.
type Signal struct {
	Action     Action          `json:"action"`
	Confidence decimal.Decimal `json:"confidence"`
	Reason     string          `json:"reason"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Pattern    string          `json:"pattern,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Source     string          `json:"source"`
}

// ExitSignal is emitted by the AI dynamic-exit overlay to override the plain
// TP/SL timers.
type ExitSignal struct {
	Sell       bool            `json:"sell"`
	Reason     string          `json:"reason"`
	Confidence decimal.Decimal `json:"confidence"`
	Emergency  bool            `json:"emergency"`
}

// BudgetState is the RPC budget governor's persisted daily counter bank.
type BudgetState struct {
	Date         string         `json:"date"` // YYYY-MM-DD, UTC
	CallsUsed    int            `json:"callsUsed"`
	PerMethod    map[string]int `json:"perMethod"`
	RolloverBank int            `json:"rolloverBank"`
	TotalBudget  int            `json:"totalBudget"`
}

// PriceCacheEntry is one cached price observation with its rolling window.
type PriceCacheEntry struct {
	Price        decimal.Decimal   `json:"price"`
	Timestamp    time.Time         `json:"timestamp"`
	Source       string            `json:"source"`
	RecentPrices []decimal.Decimal `json:"recentPrices"`
	Volatility   decimal.Decimal   `json:"volatility"`
	writeCount   int
}

// SubscriptionHandle is a reference-counted chain subscription.
type SubscriptionHandle struct {
	FilterKey  string `json:"filterKey"`
	RefCount   int    `json:"refCount"`
	ChainSubID uint64 `json:"chainSubId"`
}

// RiskCheckResult is what the Risk Manager returns for a candidate.
type RiskCheckResult struct {
	Allowed             bool            `json:"allowed"`
	MaxPositionSize     decimal.Decimal `json:"maxPositionSize"`
	ConfidenceMultiplier decimal.Decimal `json:"confidenceMultiplier"`
	Warnings            []string        `json:"warnings"`
	Reason              string          `json:"reason,omitempty"`
}

// ExecutionResult is the Executor's return shape for both live and dry-run
// swaps.
type ExecutionResult struct {
	Success         bool            `json:"success"`
	DryRun          bool            `json:"dryRun"`
	Signature       string          `json:"signature,omitempty"`
	OutAmount       decimal.Decimal `json:"outAmount"`
	EstimatedFee    decimal.Decimal `json:"estimatedFee"`
	PriceImpactPct  decimal.Decimal `json:"priceImpactPct"`
	PriceImpactLoss decimal.Decimal `json:"priceImpactLoss"`
	TotalCost       decimal.Decimal `json:"totalCost"`
	CostPercent     decimal.Decimal `json:"costPercent"`
	Reason          string          `json:"reason,omitempty"`
}

// DexPair is the subset of a discovery-price response the system consumes.
type DexPair struct {
	PriceUSD      decimal.Decimal `json:"priceUsd"`
	PriceChangeM5 decimal.Decimal `json:"priceChangeM5"`
	PriceChangeH1 decimal.Decimal `json:"priceChangeH1"`
	PriceChangeH6 decimal.Decimal `json:"priceChangeH6"`
	PriceChangeH24 decimal.Decimal `json:"priceChangeH24"`
	VolumeH1      decimal.Decimal `json:"volumeH1"`
	VolumeH24     decimal.Decimal `json:"volumeH24"`
	LiquidityUSD  decimal.Decimal `json:"liquidityUsd"`
	FDV           decimal.Decimal `json:"fdv"`
	PairCreatedAt time.Time       `json:"pairCreatedAt"`
}

// QuoteResponse mirrors the aggregator's quote payload.
type QuoteResponse struct {
	OutAmount             string          `json:"outAmount"`
	OtherAmountThreshold  string          `json:"otherAmountThreshold"`
	PriceImpactPct        decimal.Decimal `json:"priceImpactPct"`
	RoutePlan             []RouteStep     `json:"routePlan"`
}

// RouteStep is one hop of an aggregator route plan.
type RouteStep struct {
	SwapInfo map[string]any `json:"swapInfo"`
	Percent  int            `json:"percent"`
}

// SwapResponse mirrors the aggregator's swap-build payload.
type SwapResponse struct {
	SwapTransaction     string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

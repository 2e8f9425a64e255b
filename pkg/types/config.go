// Package types also holds the agent's runtime configuration shapes.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentConfig is the fully-resolved configuration for one orchestrator run,
// assembled from defaults, a config file, and CLI flags (flags win).
type AgentConfig struct {
	Live                bool            `json:"live"`
	ConfirmLive         bool            `json:"confirmLive"`
	Hours               decimal.Decimal `json:"hours"`
	Once                bool            `json:"once"`
	TargetToken         string          `json:"targetToken,omitempty"`
	AmountSOL           decimal.Decimal `json:"amountSol"`
	SlippageBps         int             `json:"slippageBps"`
	MinProfitPct        decimal.Decimal `json:"minProfitPct"`
	RiskPct             decimal.Decimal `json:"riskPct"`
	MinTradeSOL         decimal.Decimal `json:"minTradeSol"`
	MaxTradeSOL         decimal.Decimal `json:"maxTradeSol"`
	StrategyMode        string          `json:"strategyMode"`
	UseStrategies       []string        `json:"useStrategies"`
	AllowHoldBuys       bool            `json:"allowHoldBuys"`
	MinHoldConfidence   decimal.Decimal `json:"minHoldConfidence"`
	AutoTP              bool            `json:"autoTp"`
	TPMinPct            decimal.Decimal `json:"tpMinPct"`
	TPIntervalMs        int             `json:"tpIntervalMs"`
	AutoSL              bool            `json:"autoSl"`
	SLPct               decimal.Decimal `json:"slPct"`
	SLIntervalMs        int             `json:"slIntervalMs"`
	MultiInput          bool            `json:"multiInput"`
	RoundTrip           bool            `json:"roundTrip"`
	SeenTTLMinutes      int             `json:"seenTtlMinutes"`
	TargetMultiplier    decimal.Decimal `json:"targetMultiplier,omitempty"`
	SkipValidate        bool            `json:"skipValidate"`

	ScanInterval      time.Duration `json:"scanInterval"`
	StatusInterval    time.Duration `json:"statusInterval"`
	RPCEndpoint       string        `json:"rpcEndpoint"`
	RPCWSEndpoint     string        `json:"rpcWsEndpoint"`
	AggregatorBaseURL string        `json:"aggregatorBaseUrl"`
	LLMBaseURL        string        `json:"llmBaseUrl"`
	LLMModel          string        `json:"llmModel"`
	DataDir           string        `json:"dataDir"`
	Server            ServerConfig  `json:"server"`
	Risk              RiskLimits    `json:"risk"`
	Budget            BudgetConfig  `json:"budget"`
}

// RiskLimits bounds position sizing and concentration, consumed by the Risk
// Manager.
type RiskLimits struct {
	MaxPositionPct   decimal.Decimal `json:"maxPositionPct"`
	MaxDoublings     int             `json:"maxDoublings"`
	DoublingMinPnL   []decimal.Decimal `json:"doublingMinPnl"`
	MaxRugScore      int             `json:"maxRugScore"`
	MinLiquidityUSD  decimal.Decimal `json:"minLiquidityUsd"`
	MinVolumeUSD     decimal.Decimal `json:"minVolumeUsd"`
}

// BudgetConfig seeds the RPC Budget Governor.
type BudgetConfig struct {
	BaseBudget int `json:"baseBudget"`
	MaxBank    int `json:"maxBank"`
}

// ServerConfig configures the ambient status/metrics/WS HTTP surface.
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	WebSocketPath  string        `json:"websocketPath"`
	ReadTimeout    time.Duration `json:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
	EnableMetrics  bool          `json:"enableMetrics"`
}

// DefaultAgentConfig mirrors the spec's documented defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		AmountSOL:         decimal.NewFromFloat(0.05),
		SlippageBps:       100,
		MinProfitPct:      decimal.NewFromInt(1),
		RiskPct:           decimal.NewFromInt(2),
		MinTradeSOL:       decimal.NewFromFloat(0.01),
		MaxTradeSOL:       decimal.NewFromFloat(1.0),
		StrategyMode:      "ensemble",
		MinHoldConfidence: decimal.NewFromFloat(0.7),
		AutoTP:            true,
		TPMinPct:          decimal.NewFromInt(2),
		TPIntervalMs:      30_000,
		AutoSL:            true,
		SLPct:             decimal.NewFromInt(10),
		SLIntervalMs:      30_000,
		SeenTTLMinutes:    15,
		ScanInterval:      30 * time.Second,
		StatusInterval:    30 * time.Minute,
		DataDir:           "./data",
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          8090,
			WebSocketPath: "/ws",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			EnableMetrics: true,
		},
		Risk: RiskLimits{
			MaxPositionPct:  decimal.NewFromInt(30),
			MaxDoublings:    3,
			DoublingMinPnL:  []decimal.Decimal{decimal.NewFromInt(5), decimal.NewFromInt(10), decimal.NewFromInt(15)},
			MaxRugScore:     60,
			MinLiquidityUSD: decimal.NewFromInt(50_000),
			MinVolumeUSD:    decimal.NewFromInt(20_000),
		},
		Budget: BudgetConfig{
			BaseBudget: 2_500_000,
			MaxBank:    2_000_000,
		},
	}
}

package llmvalidator

import (
	"fmt"

	"github.com/atlas-desktop/solana-sniper/internal/strategy"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
)

const systemPromptEntryDecision = `You are a risk-averse trading gatekeeper for a Solana memecoin sniper.
You are given the ensemble strategy signal, market metrics, and the most
recent candle. Decide whether to approve the entry. Respond ONLY with a
JSON object: {"approve": bool, "risk_level": "low"|"medium"|"high",
"confidence": 0.0-1.0, "reasoning": "..."}.`

func buildEntryPrompt(combined types.Signal, mm types.MarketMetrics, candle *strategy.Candle) string {
	candleLine := "no recent candle available"
	if candle != nil {
		candleLine = fmt.Sprintf("O:%s H:%s L:%s C:%s", candle.Open, candle.High, candle.Low, candle.Close)
	}
	return fmt.Sprintf(`Combined signal: action=%s confidence=%s reason=%q
Market: liquidity_usd=%s volume_24h_usd=%s price_change_24h_pct=%s rvol=%s age_hours=%s
Candle: %s`,
		combined.Action, combined.Confidence, combined.Reason,
		mm.LiquidityUSD, mm.Volume24hUSD, mm.PriceChange24hPct, mm.RVOL, mm.AgeHours,
		candleLine,
	)
}

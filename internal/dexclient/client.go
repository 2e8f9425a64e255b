// Package dexclient is the HTTP client for the Discovery HTTP surface
// described in spec §6: a set of token-list/boost endpoints that must
// degrade to empty on failure, and a pair-price endpoint
// (GET /latest/dex/tokens/{address}). Response shapes are the DexScreener
// JSON schema.
package dexclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
)

// Client is a thin, timeout-bounded wrapper over the discovery aggregator's
// HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// New constructs a Client against baseURL (e.g. https://api.dexscreener.com).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type pairResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string      `json:"chainId"`
	DexID       string      `json:"dexId"`
	PairAddress string      `json:"pairAddress"`
	BaseToken   token       `json:"baseToken"`
	PriceUSD    string      `json:"priceUsd"`
	Txns        txns        `json:"txns"`
	Volume      volume      `json:"volume"`
	PriceChange priceChange `json:"priceChange"`
	Liquidity   liquidity   `json:"liquidity"`
	FDV         float64     `json:"fdv"`
	PairCreatedAtMs int64   `json:"pairCreatedAt"`
}

type token struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
}

type txns struct {
	H24 buysSells `json:"h24"`
}

type buysSells struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

type volume struct {
	H1  float64 `json:"h1"`
	H24 float64 `json:"h24"`
}

type priceChange struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type liquidity struct {
	Usd float64 `json:"usd"`
}

func (p pair) toDexPair() types.DexPair {
	return types.DexPair{
		PriceUSD:       decFloat(mustParseFloat(p.PriceUSD)),
		PriceChangeM5:  decFloat(p.PriceChange.M5),
		PriceChangeH1:  decFloat(p.PriceChange.H1),
		PriceChangeH6:  decFloat(p.PriceChange.H6),
		PriceChangeH24: decFloat(p.PriceChange.H24),
		VolumeH1:       decFloat(p.Volume.H1),
		VolumeH24:      decFloat(p.Volume.H24),
		LiquidityUSD:   decFloat(p.Liquidity.Usd),
		FDV:            decFloat(p.FDV),
		PairCreatedAt:  time.UnixMilli(p.PairCreatedAtMs),
	}
}

func (p pair) toCandidate() types.Candidate {
	return types.Candidate{
		Address:           p.BaseToken.Address,
		DexID:             p.DexID,
		LiquidityUSD:      decFloat(p.Liquidity.Usd),
		Volume24hUSD:      decFloat(p.Volume.H24),
		Volume1hUSD:       decFloat(p.Volume.H1),
		PriceUSD:          decFloat(mustParseFloat(p.PriceUSD)),
		PriceChange24hPct: decFloat(p.PriceChange.H24),
		TxCounts:          p.Txns.H24.Buys + p.Txns.H24.Sells,
	}
}

func decFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func mustParseFloat(s string) float64 {
	var f float64
	_, _ = fmt.Sscanf(s, "%g", &f)
	return f
}

// Pair fetches the pairs for address via GET /latest/dex/tokens/{address}
// and returns the first one in the response, in the order the API lists them.
func (c *Client) Pair(ctx context.Context, address string) (types.DexPair, error) {
	var resp pairResponse
	if err := c.getJSON(ctx, "/latest/dex/tokens/"+address, &resp); err != nil {
		return types.DexPair{}, err
	}
	if len(resp.Pairs) == 0 {
		return types.DexPair{}, fmt.Errorf("no pairs returned for %s", address)
	}
	return resp.Pairs[0].toDexPair(), nil
}

// RugScore derives a heuristic rug-risk score in [0,100] from the pair's own
// liquidity/FDV ratio and age, since spec.md names no dedicated rug-check
// endpoint: thin liquidity relative to fully-diluted value and a very young
// pair both raise the score. Higher is riskier.
func (c *Client) RugScore(ctx context.Context, address string) (int, error) {
	pair, err := c.Pair(ctx, address)
	if err != nil {
		return 0, err
	}
	score := 0
	if pair.FDV.IsPositive() {
		ratio, _ := pair.LiquidityUSD.Div(pair.FDV).Float64()
		switch {
		case ratio < 0.01:
			score += 50
		case ratio < 0.05:
			score += 25
		case ratio < 0.1:
			score += 10
		}
	}
	if !pair.PairCreatedAt.IsZero() {
		age := time.Since(pair.PairCreatedAt)
		switch {
		case age < time.Hour:
			score += 40
		case age < 6*time.Hour:
			score += 20
		case age < 24*time.Hour:
			score += 10
		}
	}
	if score > 100 {
		score = 100
	}
	return score, nil
}

// TokenProfiles fetches the latest boosted-token-profile feed, degrading to
// an empty slice on any error per the Discovery HTTP contract.
func (c *Client) TokenProfiles(ctx context.Context) []types.Candidate {
	var resp pairResponse
	if err := c.getJSON(ctx, "/token-profiles/latest/v1", &resp); err != nil {
		return nil
	}
	return toCandidates(resp.Pairs)
}

// TokenBoosts fetches the latest active token-boost feed, degrading to an
// empty slice on any error.
func (c *Client) TokenBoosts(ctx context.Context) []types.Candidate {
	var resp pairResponse
	if err := c.getJSON(ctx, "/token-boosts/latest/v1", &resp); err != nil {
		return nil
	}
	return toCandidates(resp.Pairs)
}

// Search runs a DEX-filtered pair search (e.g. "?q=solana") degrading to an
// empty slice on any error.
func (c *Client) Search(ctx context.Context, query string) []types.Candidate {
	var resp pairResponse
	if err := c.getJSON(ctx, "/latest/dex/search?q="+query, &resp); err != nil {
		return nil
	}
	return toCandidates(resp.Pairs)
}

func toCandidates(pairs []pair) []types.Candidate {
	out := make([]types.Candidate, 0, len(pairs))
	for _, p := range pairs {
		if p.ChainID != "" && p.ChainID != "solana" {
			continue
		}
		out = append(out, p.toCandidate())
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("dexclient: status %d from %s", resp.StatusCode, path)
	}
	return json.Unmarshal(body, out)
}

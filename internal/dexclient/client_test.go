package dexclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/dexclient"
	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

const onePairJSON = `{"pairs":[{"chainId":"solana","dexId":"raydium","pairAddress":"abc",
"baseToken":{"address":"MintAddr111","symbol":"FOO"},"priceUsd":"1.23",
"txns":{"h24":{"buys":10,"sells":4}},
"volume":{"h1":100,"h24":2400},
"priceChange":{"m5":1,"h1":2,"h6":3,"h24":4},
"liquidity":{"usd":50000},"fdv":1000000,"pairCreatedAt":1000000}]}`

func TestPairParsesDexScreenerShape(t *testing.T) {
	srv := newTestServer(t, onePairJSON)
	defer srv.Close()

	c := dexclient.New(srv.URL, 2*time.Second)
	pair, err := c.Pair(context.Background(), "MintAddr111")
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if !pair.PriceUSD.Equal(decimal.NewFromFloat(1.23)) {
		t.Fatalf("unexpected PriceUSD: %s", pair.PriceUSD)
	}
	if !pair.LiquidityUSD.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("unexpected LiquidityUSD: %s", pair.LiquidityUSD)
	}
}

func TestPairReturnsErrorOnEmptyPairs(t *testing.T) {
	srv := newTestServer(t, `{"pairs":[]}`)
	defer srv.Close()

	c := dexclient.New(srv.URL, 2*time.Second)
	if _, err := c.Pair(context.Background(), "nope"); err == nil {
		t.Fatal("expected an error for an address with no pairs")
	}
}

func TestTokenBoostsDegradesToEmptyOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := dexclient.New(srv.URL, 2*time.Second)
	got := c.TokenBoosts(context.Background())
	if len(got) != 0 {
		t.Fatalf("expected an empty slice on upstream error, got %d candidates", len(got))
	}
}

func TestTokenProfilesFiltersNonSolanaPairs(t *testing.T) {
	body := `{"pairs":[
		{"chainId":"solana","dexId":"raydium","baseToken":{"address":"sol1"},"priceUsd":"1","volume":{"h24":1},"liquidity":{"usd":1}},
		{"chainId":"ethereum","dexId":"uniswap","baseToken":{"address":"eth1"},"priceUsd":"1","volume":{"h24":1},"liquidity":{"usd":1}}
	]}`
	srv := newTestServer(t, body)
	defer srv.Close()

	c := dexclient.New(srv.URL, 2*time.Second)
	got := c.TokenProfiles(context.Background())
	if len(got) != 1 || got[0].Address != "sol1" {
		t.Fatalf("expected only the solana pair to survive, got %+v", got)
	}
}

func TestRugScoreHigherForThinLiquidityYoungPair(t *testing.T) {
	now := time.Now()
	body := `{"pairs":[{"chainId":"solana","baseToken":{"address":"m"},"priceUsd":"1",
"volume":{"h24":1},"liquidity":{"usd":100},"fdv":1000000,"pairCreatedAt":` +
		jsonInt(now.UnixMilli()) + `}]}`
	srv := newTestServer(t, body)
	defer srv.Close()

	c := dexclient.New(srv.URL, 2*time.Second)
	score, err := c.RugScore(context.Background(), "m")
	if err != nil {
		t.Fatalf("RugScore: %v", err)
	}
	if score < 80 {
		t.Fatalf("expected a high rug score for a paper-thin, brand-new pair, got %d", score)
	}
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/agenterrors"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
)

// WrappedSOLMint is the canonical wrapped-SOL mint used as the input side
// of every buy quote.
const WrappedSOLMint = "So11111111111111111111111111111111111111112"

// Aggregator is the DEX-aggregator dependency: a quote and a signable swap
// transaction built from that quote.
type Aggregator interface {
	Quote(ctx context.Context, inputMint, outputMint string, amountLamports uint64, slippageBps int) (types.QuoteResponse, error)
	BuildSwap(ctx context.Context, quote types.QuoteResponse, userPubkey string) (types.SwapResponse, error)
}

// HTTPAggregator calls a Jupiter-shaped aggregator API directly over HTTP.
type HTTPAggregator struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAggregator constructs an HTTPAggregator against baseURL.
func NewHTTPAggregator(baseURL string, timeout time.Duration) *HTTPAggregator {
	return &HTTPAggregator{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// Quote requests a swap quote. DNS/network errors are tagged NetworkTransient
// so the executor's retry/backoff can react; the same base URL is retried and
// no alternative host or DNS resolution is attempted.
func (a *HTTPAggregator) Quote(ctx context.Context, inputMint, outputMint string, amountLamports uint64, slippageBps int) (types.QuoteResponse, error) {
	q := url.Values{}
	q.Set("inputMint", inputMint)
	q.Set("outputMint", outputMint)
	q.Set("amount", strconv.FormatUint(amountLamports, 10))
	q.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return types.QuoteResponse{}, agenterrors.New(agenterrors.ValidationFailed, "aggregator", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return types.QuoteResponse{}, agenterrors.New(agenterrors.NetworkTransient, "aggregator", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.QuoteResponse{}, agenterrors.New(agenterrors.NetworkTransient, "aggregator", err)
	}
	if resp.StatusCode >= 300 {
		return types.QuoteResponse{}, agenterrors.New(agenterrors.AggregatorError, "aggregator", fmt.Errorf("quote status %d: %s", resp.StatusCode, string(body)))
	}

	var quote types.QuoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return types.QuoteResponse{}, agenterrors.New(agenterrors.AggregatorError, "aggregator", err)
	}
	return quote, nil
}

// BuildSwap requests the signable swap transaction for an accepted quote.
func (a *HTTPAggregator) BuildSwap(ctx context.Context, quote types.QuoteResponse, userPubkey string) (types.SwapResponse, error) {
	payload, err := json.Marshal(map[string]any{
		"quoteResponse":  quote,
		"userPublicKey":  userPubkey,
		"wrapAndUnwrapSol": true,
	})
	if err != nil {
		return types.SwapResponse{}, agenterrors.New(agenterrors.ValidationFailed, "aggregator", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return types.SwapResponse{}, agenterrors.New(agenterrors.ValidationFailed, "aggregator", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return types.SwapResponse{}, agenterrors.New(agenterrors.NetworkTransient, "aggregator", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.SwapResponse{}, agenterrors.New(agenterrors.NetworkTransient, "aggregator", err)
	}
	if resp.StatusCode >= 300 {
		return types.SwapResponse{}, agenterrors.New(agenterrors.AggregatorError, "aggregator", fmt.Errorf("swap status %d: %s", resp.StatusCode, string(body)))
	}

	var swap types.SwapResponse
	if err := json.Unmarshal(body, &swap); err != nil {
		return types.SwapResponse{}, agenterrors.New(agenterrors.AggregatorError, "aggregator", err)
	}
	return swap, nil
}

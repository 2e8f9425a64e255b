package historicalprice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// BirdeyeClient fetches daily price series from the Historical price HTTP
// endpoint in spec §6: GET /defi/history_price?address&type=1D&time_from&time_to.
type BirdeyeClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewBirdeyeClient constructs a BirdeyeClient against baseURL.
func NewBirdeyeClient(baseURL, apiKey string, timeout time.Duration) *BirdeyeClient {
	return &BirdeyeClient{baseURL: baseURL, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

type historyResponse struct {
	Data struct {
		Items []struct {
			Value    float64 `json:"value"`
			UnixTime int64   `json:"unixTime"`
		} `json:"items"`
	} `json:"data"`
}

// Fetch implements historicalprice.Fetcher, returning 30 days of daily
// closes ending now.
func (c *BirdeyeClient) Fetch(ctx context.Context, mint string) ([]PricePoint, error) {
	points, err := c.fetchSeries(ctx, mint, "1D", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	return points, nil
}

// HourlyCloses returns 7 days of hourly closing prices for the Base
// Validator's RSI-14 / bullish-divergence check.
func (c *BirdeyeClient) HourlyCloses(ctx context.Context, mint string) ([]decimal.Decimal, error) {
	points, err := c.fetchSeries(ctx, mint, "1H", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	closes := make([]decimal.Decimal, len(points))
	for i, p := range points {
		closes[i] = p.Price
	}
	return closes, nil
}

func (c *BirdeyeClient) fetchSeries(ctx context.Context, mint, interval string, window time.Duration) ([]PricePoint, error) {
	now := time.Now()
	from := now.Add(-window)

	url := fmt.Sprintf("%s/defi/history_price?address=%s&type=%s&time_from=%s&time_to=%s",
		c.baseURL, mint, interval, strconv.FormatInt(from.Unix(), 10), strconv.FormatInt(now.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("historicalprice: status %d", resp.StatusCode)
	}

	var parsed historyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	points := make([]PricePoint, 0, len(parsed.Data.Items))
	for _, item := range parsed.Data.Items {
		points = append(points, PricePoint{
			Time:  time.Unix(item.UnixTime, 0),
			Price: decimal.NewFromFloat(item.Value),
		})
	}
	return points, nil
}

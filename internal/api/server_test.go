package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atlas-desktop/solana-sniper/internal/api"
	"github.com/atlas-desktop/solana-sniper/internal/notify"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubStatusProvider struct {
	snapshot notify.StatusUpdate
}

func (s stubStatusProvider) Snapshot(ctx context.Context) notify.StatusUpdate { return s.snapshot }

func TestStatusEndpointReturnsSnapshot(t *testing.T) {
	status := stubStatusProvider{snapshot: notify.StatusUpdate{
		State:         "RUNNING",
		BalanceSOL:    decimal.NewFromFloat(1.5),
		OpenPositions: 2,
	}}

	cfg := types.ServerConfig{EnableMetrics: true, WebSocketPath: "/ws"}
	server := api.NewServer(zap.NewNop(), cfg, nil, status)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got notify.StatusUpdate
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.State != "RUNNING" || got.OpenPositions != 2 {
		t.Fatalf("unexpected status payload: %+v", got)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	status := stubStatusProvider{}
	cfg := types.ServerConfig{EnableMetrics: true}
	server := api.NewServer(zap.NewNop(), cfg, nil, status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

// Package tests exercises the ambient API surface end to end:
// a real HTTP listener, a real notify Hub driving WebSocket clients, and a
// status snapshot served over /status, wired together the way
// cmd/agent/main.go wires them.
package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/api"
	"github.com/atlas-desktop/solana-sniper/internal/notify"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubStatusProvider struct {
	snapshot notify.StatusUpdate
}

func (s stubStatusProvider) Snapshot(ctx context.Context) notify.StatusUpdate { return s.snapshot }

// TestStatusAndWebSocketEndToEnd starts a real api.Server backed by a real
// notify.Hub, reads /status over plain HTTP, then connects a WebSocket
// client and confirms a broadcast trade alert actually arrives.
func TestStatusAndWebSocketEndToEnd(t *testing.T) {
	logger := zap.NewNop()
	hub := notify.NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	status := stubStatusProvider{snapshot: notify.StatusUpdate{
		State:         "RUNNING",
		BalanceSOL:    decimal.NewFromFloat(2.5),
		OpenPositions: 1,
		UptimeSeconds: 42,
	}}

	cfg := types.ServerConfig{EnableMetrics: true, WebSocketPath: "/ws"}
	server := api.NewServer(logger, cfg, hub, status)

	httpSrv := httptest.NewServer(server.Handler())
	defer httpSrv.Close()

	t.Run("status", func(t *testing.T) {
		resp, err := http.Get(httpSrv.URL + "/status")
		if err != nil {
			t.Fatalf("GET /status: %v", err)
		}
		defer resp.Body.Close()

		var got notify.StatusUpdate
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if got.State != "RUNNING" || got.OpenPositions != 1 {
			t.Fatalf("unexpected status payload: %+v", got)
		}
	})

	t.Run("websocket broadcast", func(t *testing.T) {
		wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("dial websocket: %v", err)
		}
		defer conn.Close()

		notifier := notify.NewHubNotifier(logger, hub)

		// Status updates go out via broadcastAll, reaching every connected
		// client regardless of channel subscription. Give the hub a moment
		// to finish registering the client before the broadcast fires,
		// since registration happens asynchronously on the hub's event loop.
		time.Sleep(50 * time.Millisecond)
		notifier.SendStatusUpdate(notify.StatusUpdate{
			State:         "RUNNING",
			BalanceSOL:    decimal.NewFromFloat(3.1),
			OpenPositions: 2,
		})

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg notify.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read websocket message: %v", err)
		}
		if msg.Type != notify.MsgTypeStatusUpdate {
			t.Fatalf("expected a status_update message, got %q", msg.Type)
		}

		var update notify.StatusUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			t.Fatalf("decode status update payload: %v", err)
		}
		if update.OpenPositions != 2 {
			t.Fatalf("unexpected open positions in broadcast update: %d", update.OpenPositions)
		}
	})
}

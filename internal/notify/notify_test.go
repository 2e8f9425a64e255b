package notify_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/notify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func TestHubNotifierWithoutHubOnlyLogs(t *testing.T) {
	n := notify.NewHubNotifier(zap.NewNop(), nil)
	n.SendTradeAlert(notify.TradeAlert{Mint: "MintA", Side: "buy", Amount: decimal.NewFromInt(1)})
	n.SendStatusUpdate(notify.StatusUpdate{State: "RUNNING"})
	n.SendErrorAlert("executor", errors.New("boom"))
	n.SendGeneralAlert("hello")
}

func TestHubRunStopsOnContextCancel(t *testing.T) {
	hub := notify.NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}

package notify

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TradeAlert is pushed on every confirmed buy or sell.
type TradeAlert struct {
	Mint      string          `json:"mint"`
	Side      string          `json:"side"` // "buy" or "sell"
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	ProfitPct decimal.Decimal `json:"profitPct,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Signature string          `json:"signature,omitempty"`
}

// StatusUpdate is the periodic snapshot the Orchestrator emits.
type StatusUpdate struct {
	State          string          `json:"state"`
	BalanceSOL     decimal.Decimal `json:"balanceSol"`
	OpenPositions  int             `json:"openPositions"`
	BudgetUsedPct  decimal.Decimal `json:"budgetUsedPct"`
	UptimeSeconds  int64           `json:"uptimeSeconds"`
}

// Notifier is the narrow fire-and-forget surface every pipeline stage
// depends on; callers never block on delivery.
type Notifier interface {
	SendTradeAlert(alert TradeAlert)
	SendStatusUpdate(status StatusUpdate)
	SendErrorAlert(component string, err error)
	SendGeneralAlert(message string)
}

// HubNotifier implements Notifier over a Hub, logging every push alongside
// the broadcast so operators following stdout see the same events a
// connected dashboard would.
type HubNotifier struct {
	logger *zap.Logger
	hub    *Hub
}

// NewHubNotifier constructs a HubNotifier. hub may be nil, in which case
// every call only logs (useful for headless/backtest-style runs).
func NewHubNotifier(logger *zap.Logger, hub *Hub) *HubNotifier {
	return &HubNotifier{logger: logger.Named("notify"), hub: hub}
}

func (n *HubNotifier) SendTradeAlert(alert TradeAlert) {
	n.logger.Info("trade alert",
		zap.String("mint", alert.Mint), zap.String("side", alert.Side),
		zap.String("reason", alert.Reason))
	if n.hub != nil {
		n.hub.publishToChannel("trades", MsgTypeTradeAlert, alert)
		n.hub.publishToChannel("trades:"+alert.Mint, MsgTypeTradeAlert, alert)
	}
}

func (n *HubNotifier) SendStatusUpdate(status StatusUpdate) {
	n.logger.Info("status update",
		zap.String("state", status.State), zap.Int("openPositions", status.OpenPositions))
	if n.hub != nil {
		n.hub.broadcastAll(MsgTypeStatusUpdate, status)
	}
}

func (n *HubNotifier) SendErrorAlert(component string, err error) {
	n.logger.Error("error alert", zap.String("component", component), zap.Error(err))
	if n.hub != nil {
		n.hub.broadcastAll(MsgTypeErrorAlert, map[string]string{"component": component, "error": err.Error()})
	}
}

func (n *HubNotifier) SendGeneralAlert(message string) {
	n.logger.Info("general alert", zap.String("message", message))
	if n.hub != nil {
		n.hub.broadcastAll(MsgTypeGeneralAlert, map[string]string{"message": message})
	}
}

package notifications

import (
	"fmt"

	"github.com/ducminhle1904/crypto-trading-core/internal/logger"
	"github.com/ducminhle1904/crypto-trading-core/internal/orders"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// Notifier delivers a leveled message to an external channel. Levels
// are "success", "warning", "error" and "critical".
type Notifier interface {
	SendAlert(level, message string) error
}

// AlertRelay forwards order failures and risk alerts to a Notifier.
// Delivery is best effort; a failed send is logged and dropped.
type AlertRelay struct {
	notifier Notifier
	log      *logger.Logger
}

func NewAlertRelay(notifier Notifier, log *logger.Logger) *AlertRelay {
	return &AlertRelay{notifier: notifier, log: log}
}

// HandleOrderEvent notifies on failed orders and reconciliation alerts
func (r *AlertRelay) HandleOrderEvent(event orders.Event) {
	switch event.Type {
	case orders.EventOrderFailed:
		reason, _ := event.Payload["reason"].(string)
		r.send("error", fmt.Sprintf("Order %s on %s failed: %s", event.OrderID, event.Symbol, reason))
	case orders.EventReconciliation:
		reason, _ := event.Payload["reason"].(string)
		r.send("critical", fmt.Sprintf("Reconciliation needed for %s (%s): %s", event.OrderID, event.Symbol, reason))
	}
}

// HandleRiskAlert notifies on alert creation and resolution
func (r *AlertRelay) HandleRiskAlert(alert risk.Alert) {
	if alert.Resolved {
		r.send("success", fmt.Sprintf("Risk alert resolved: %s (%s)", alert.LimitType, alert.Component))
		return
	}
	level := "warning"
	if alert.Level == risk.LevelCritical {
		level = "critical"
	}
	r.send(level, alert.Message)
}

func (r *AlertRelay) send(level, message string) {
	if err := r.notifier.SendAlert(level, message); err != nil {
		r.log.Warning("notification delivery failed: %v", err)
	}
}

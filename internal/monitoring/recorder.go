package monitoring

import (
	"github.com/ducminhle1904/crypto-trading-core/internal/orders"
	"github.com/ducminhle1904/crypto-trading-core/internal/risk"
)

// Recorder translates order events and risk alerts into Prometheus
// metrics and health state.
type Recorder struct {
	health *HealthChecker
}

func NewRecorder(health *HealthChecker) *Recorder {
	return &Recorder{health: health}
}

// HandleOrderEvent records terminal order outcomes and fill activity
func (r *Recorder) HandleOrderEvent(event orders.Event) {
	switch event.Type {
	case orders.EventOrderFilled:
		RecordOrder(event.Symbol, string(orders.StateFilled))
		if filled, ok := event.Payload["new_filled"].(float64); ok {
			RecordFill(event.Symbol, filled)
		}
		if r.health != nil {
			price, _ := event.Payload["avg_fill_price"].(float64)
			r.health.RecordFill(price)
		}
	case orders.EventOrderCancelled:
		RecordOrder(event.Symbol, string(orders.StateCancelled))
	case orders.EventOrderFailed:
		state, _ := event.Payload["state"].(string)
		if state == "" {
			state = string(orders.StateFailed)
		}
		RecordOrder(event.Symbol, state)
		RecordError("order_failed")
	case orders.EventReconciliation:
		RecordError("reconciliation")
		if r.health != nil {
			reason, _ := event.Payload["reason"].(string)
			r.health.RecordError(reason)
		}
	}
}

// HandleRiskAlert counts raised alerts by level and limit
func (r *Recorder) HandleRiskAlert(alert risk.Alert) {
	if alert.Resolved {
		return
	}
	RecordRiskAlert(string(alert.Level), alert.LimitType)
}

package orders

import (
	"sync"
	"time"
)

// EventType identifies an order lifecycle event
type EventType string

const (
	EventOrderCreated   EventType = "order_created"
	EventOrderFilled    EventType = "order_filled"
	EventOrderPartial   EventType = "order_partial"
	EventOrderCancelled EventType = "order_cancelled"
	EventOrderFailed    EventType = "order_failed"
	EventOrderUpdated   EventType = "order_updated"

	// EventReconciliation flags a divergence between local and exchange
	// state that needs manual review.
	EventReconciliation EventType = "reconciliation_alert"
)

// Event carries an order lifecycle notification to subscribers
type Event struct {
	Type      EventType              `json:"type"`
	OrderID   string                 `json:"order_id"`
	Symbol    string                 `json:"symbol"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// EventHandler receives order events. Handlers run on the polling
// goroutine and must return quickly.
type EventHandler func(event Event)

// eventBus fans events out to per-type subscriber lists
type eventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]EventHandler
	all      []EventHandler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[EventType][]EventHandler)}
}

// subscribe registers a handler for one event type
func (b *eventBus) subscribe(t EventType, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// subscribeAll registers a handler for every event type
func (b *eventBus) subscribeAll(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

func (b *eventBus) emit(event Event) {
	b.mu.RLock()
	typed := b.handlers[event.Type]
	all := b.all
	b.mu.RUnlock()

	for _, h := range typed {
		h(event)
	}
	for _, h := range all {
		h(event)
	}
}

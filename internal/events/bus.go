package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTrendUpdate       EventType = "TREND_UPDATE"
	EventSignalUpdate      EventType = "SIGNAL_UPDATE"
	EventOpportunityUpdate EventType = "OPPORTUNITY_UPDATE"
	EventValidationUpdate  EventType = "VALIDATION_UPDATE"
	EventSizingUpdate      EventType = "SIZING_UPDATE"
	EventTradeExecuted     EventType = "TRADE_EXECUTED"
	EventTradeClosed       EventType = "TRADE_CLOSED"
	EventLifecycleUpdate   EventType = "LIFECYCLE_UPDATE"
	EventPriceUpdate       EventType = "PRICE_UPDATE"
	EventRefreshComplete   EventType = "REFRESH_COMPLETE"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishPriceUpdate publishes a price update event
func (eb *EventBus) PublishPriceUpdate(symbol string, price float64) {
	eb.Publish(Event{
		Type: EventPriceUpdate,
		Data: map[string]interface{}{
			"symbol": symbol,
			"price":  price,
		},
	})
}

// PublishTradeExecuted publishes a trade executed event
func (eb *EventBus) PublishTradeExecuted(symbol, direction string, entryPrice, positionSize float64) {
	eb.Publish(Event{
		Type: EventTradeExecuted,
		Data: map[string]interface{}{
			"symbol":        symbol,
			"direction":     direction,
			"entry_price":   entryPrice,
			"position_size": positionSize,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol string, entryPrice, exitPrice, positionSize, pnl, pnlPercent float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":        symbol,
			"entry_price":   entryPrice,
			"exit_price":    exitPrice,
			"position_size": positionSize,
			"pnl":           pnl,
			"pnl_percent":   pnlPercent,
		},
	})
}

// PublishRefreshComplete publishes the end of an analysis refresh cycle
func (eb *EventBus) PublishRefreshComplete(symbol string, generation uint64, opportunities int) {
	eb.Publish(Event{
		Type: EventRefreshComplete,
		Data: map[string]interface{}{
			"symbol":        symbol,
			"generation":    generation,
			"opportunities": opportunities,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}

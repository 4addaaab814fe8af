package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// InMemoryEventBus implements EventBus with in-process fanout.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]EventHandler // username -> subscriptionID -> handler
	store       EventStore
}

// NewEventBus creates a new InMemoryEventBus with the given event store.
func NewEventBus(store EventStore) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[string]EventHandler),
		store:       store,
	}
}

// Publish records the event and delivers it to all subscribers for the
// event's username.
func (eb *InMemoryEventBus) Publish(event Event) error {
	if event.Username == "" {
		return fmt.Errorf("event must have a username")
	}

	if eb.store != nil {
		// A full replay buffer never blocks the action being audited.
		_ = eb.store.Store(event)
	}

	eb.mu.RLock()
	handlers, exists := eb.subscribers[event.Username]
	if !exists || len(handlers) == 0 {
		eb.mu.RUnlock()
		return nil
	}

	// Copy handlers to avoid holding the lock during delivery
	handlersCopy := make([]EventHandler, 0, len(handlers))
	for _, handler := range handlers {
		handlersCopy = append(handlersCopy, handler)
	}
	eb.mu.RUnlock()

	for _, handler := range handlersCopy {
		handler(event)
	}

	return nil
}

// Subscribe registers a handler for one account's events.
// Returns an unsubscribe function that removes the subscription.
func (eb *InMemoryEventBus) Subscribe(username string, handler EventHandler) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.subscribers[username] == nil {
		eb.subscribers[username] = make(map[string]EventHandler)
	}

	subscriptionID := uuid.New().String()
	eb.subscribers[username][subscriptionID] = handler

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		if handlers, exists := eb.subscribers[username]; exists {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(eb.subscribers, username)
			}
		}
	}
}

// GetEventsSince returns events after the given event ID for replay.
// Returns an empty slice if no store is configured.
func (eb *InMemoryEventBus) GetEventsSince(username string, lastEventID string) ([]Event, error) {
	if eb.store == nil {
		return []Event{}, nil
	}
	return eb.store.GetSince(username, lastEventID, 100)
}

// SubscriberCount returns the number of subscribers for an account.
func (eb *InMemoryEventBus) SubscriberCount(username string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if handlers, exists := eb.subscribers[username]; exists {
		return len(handlers)
	}
	return 0
}

// TotalSubscribers returns the total number of subscribers across all accounts.
func (eb *InMemoryEventBus) TotalSubscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	total := 0
	for _, handlers := range eb.subscribers {
		total += len(handlers)
	}
	return total
}

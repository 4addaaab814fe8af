package events

import (
	"container/list"
	"sync"
	"time"
)

// InMemoryEventStore implements EventStore using a bounded in-memory buffer.
type InMemoryEventStore struct {
	mu            sync.RWMutex
	events        *list.List               // oldest at the front
	eventIndex    map[string]*list.Element // eventID -> element
	accountEvents map[string][]*list.Element
	maxSize       int
}

// NewEventStore creates a new InMemoryEventStore with the given buffer size.
func NewEventStore(maxSize int) *InMemoryEventStore {
	if maxSize <= 0 {
		maxSize = 1000
	}

	return &InMemoryEventStore{
		events:        list.New(),
		eventIndex:    make(map[string]*list.Element),
		accountEvents: make(map[string][]*list.Element),
		maxSize:       maxSize,
	}
}

// Store saves an event for later replay.
// If the buffer is full, the oldest event is removed.
func (es *InMemoryEventStore) Store(event Event) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.events.Len() >= es.maxSize {
		es.removeOldestLocked()
	}

	elem := es.events.PushBack(event)
	es.eventIndex[event.ID] = elem
	es.accountEvents[event.Username] = append(es.accountEvents[event.Username], elem)

	return nil
}

// GetSince returns events after the given event ID for one account.
// If eventID is empty, it returns the most recent events up to limit.
func (es *InMemoryEventStore) GetSince(username string, eventID string, limit int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]Event, 0)

	if eventID == "" {
		elems := es.accountEvents[username]
		start := 0
		if len(elems) > limit {
			start = len(elems) - limit
		}
		for i := start; i < len(elems); i++ {
			result = append(result, elems[i].Value.(Event))
		}
		return result, nil
	}

	startElem, exists := es.eventIndex[eventID]
	if !exists {
		// The anchor fell out of the buffer; the caller starts over.
		return result, nil
	}

	for elem := startElem.Next(); elem != nil && len(result) < limit; elem = elem.Next() {
		event := elem.Value.(Event)
		if event.Username == username {
			result = append(result, event)
		}
	}

	return result, nil
}

// Recent returns the newest events across all accounts, oldest first.
func (es *InMemoryEventStore) Recent(limit int) []Event {
	es.mu.RLock()
	defer es.mu.RUnlock()

	if limit <= 0 || limit > es.events.Len() {
		limit = es.events.Len()
	}

	result := make([]Event, 0, limit)
	elem := es.events.Back()
	for i := 0; i < limit && elem != nil; i++ {
		result = append(result, elem.Value.(Event))
		elem = elem.Prev()
	}
	// Reverse into chronological order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Cleanup removes events older than the given duration.
func (es *InMemoryEventStore) Cleanup(olderThan time.Duration) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	for es.events.Len() > 0 {
		front := es.events.Front()
		event := front.Value.(Event)

		if event.Timestamp.After(cutoff) {
			break
		}

		es.removeElementLocked(front)
	}

	return nil
}

// removeOldestLocked removes the oldest event. Must be called with lock held.
func (es *InMemoryEventStore) removeOldestLocked() {
	if es.events.Len() == 0 {
		return
	}
	es.removeElementLocked(es.events.Front())
}

// removeElementLocked removes an element from all indexes. Must be called with lock held.
func (es *InMemoryEventStore) removeElementLocked(elem *list.Element) {
	event := elem.Value.(Event)

	es.events.Remove(elem)
	delete(es.eventIndex, event.ID)

	elems := es.accountEvents[event.Username]
	for i, e := range elems {
		if e == elem {
			es.accountEvents[event.Username] = append(elems[:i], elems[i+1:]...)
			break
		}
	}
	if len(es.accountEvents[event.Username]) == 0 {
		delete(es.accountEvents, event.Username)
	}
}

// Len returns the number of events in the store.
func (es *InMemoryEventStore) Len() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.events.Len()
}

// LenForAccount returns the number of events for one account.
func (es *InMemoryEventStore) LenForAccount(username string) int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.accountEvents[username])
}

// Clear removes all events from the store.
func (es *InMemoryEventStore) Clear() {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.events = list.New()
	es.eventIndex = make(map[string]*list.Element)
	es.accountEvents = make(map[string][]*list.Element)
}

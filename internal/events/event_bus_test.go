package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func makeEvent(username, action string) Event {
	return Event{
		ID:        uuid.New().String(),
		Action:    action,
		Username:  username,
		Timestamp: time.Now().UTC(),
	}
}

func TestPublishRequiresUsername(t *testing.T) {
	bus := NewEventBus(nil)
	if err := bus.Publish(Event{ID: "x", Action: "account.locked"}); err == nil {
		t.Error("expected error for event without username")
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewEventBus(nil)

	var mu sync.Mutex
	var received []Event
	unsub := bus.Subscribe("alice", func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsub()

	event := makeEvent("alice", "account.login_failed")
	if err := bus.Publish(event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 event, got %d", len(received))
	}
	if received[0].ID != event.ID {
		t.Errorf("event id mismatch")
	}
}

func TestPublishIsolatesAccounts(t *testing.T) {
	bus := NewEventBus(nil)

	var mu sync.Mutex
	var aliceEvents, bobEvents int
	defer bus.Subscribe("alice", func(Event) { mu.Lock(); aliceEvents++; mu.Unlock() })()
	defer bus.Subscribe("bob", func(Event) { mu.Lock(); bobEvents++; mu.Unlock() })()

	if err := bus.Publish(makeEvent("alice", "account.locked")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if aliceEvents != 1 {
		t.Errorf("alice should see 1 event, got %d", aliceEvents)
	}
	if bobEvents != 0 {
		t.Errorf("bob should see 0 events, got %d", bobEvents)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus(nil)

	count := 0
	unsub := bus.Subscribe("alice", func(Event) { count++ })

	if err := bus.Publish(makeEvent("alice", "account.unlocked")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	unsub()
	if err := bus.Publish(makeEvent("alice", "account.unlocked")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if count != 1 {
		t.Errorf("expected 1 delivery, got %d", count)
	}
	if bus.SubscriberCount("alice") != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe")
	}
}

func TestPublishWithoutSubscribersSucceeds(t *testing.T) {
	bus := NewEventBus(NewEventStore(10))
	if err := bus.Publish(makeEvent("alice", "account.registered")); err != nil {
		t.Errorf("publish without subscribers should succeed: %v", err)
	}
}

func TestGetEventsSinceReplaysFromStore(t *testing.T) {
	store := NewEventStore(100)
	bus := NewEventBus(store)

	var anchor string
	for i := 0; i < 5; i++ {
		e := makeEvent("alice", "account.login_failed")
		e.Detail = fmt.Sprintf("attempt %d", i)
		if i == 1 {
			anchor = e.ID
		}
		if err := bus.Publish(e); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	replay, err := bus.GetEventsSince("alice", anchor)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(replay) != 3 {
		t.Fatalf("expected 3 events after anchor, got %d", len(replay))
	}
	if replay[0].Detail != "attempt 2" {
		t.Errorf("unexpected first replayed event: %s", replay[0].Detail)
	}
}

func TestConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewEventBus(NewEventStore(1000))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			username := fmt.Sprintf("user%d", n%3)
			unsub := bus.Subscribe(username, func(Event) {})
			for j := 0; j < 20; j++ {
				_ = bus.Publish(makeEvent(username, "account.login_succeeded"))
			}
			unsub()
		}(i)
	}
	wg.Wait()

	if got := bus.TotalSubscribers(); got != 0 {
		t.Errorf("expected 0 subscribers after all unsubscribed, got %d", got)
	}
}

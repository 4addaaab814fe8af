// Package events provides the security audit trail: every account
// lifecycle action is recorded as an event, fanned out to subscribers,
// and kept in a bounded replay buffer for the admin surface.
package events

import (
	"time"
)

// Event is one recorded security-relevant action.
type Event struct {
	ID string `json:"id"`
	// Action is one of the account audit action names, e.g.
	// "account.login_failed" or "account.locked".
	Action string `json:"action"`
	// Username is the affected account. Events are indexed by it.
	Username string `json:"username"`
	// Detail carries free-form context, never credential material.
	Detail        string    `json:"detail,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventHandler is a function that handles incoming events.
type EventHandler func(event Event)

// EventBus defines the interface for publishing and subscribing to audit events.
type EventBus interface {
	// Publish records an event and delivers it to subscribers for the
	// event's username.
	Publish(event Event) error
	// Subscribe registers a handler for one account's events.
	// Returns an unsubscribe function.
	Subscribe(username string, handler EventHandler) (unsubscribe func())
	// GetEventsSince returns events after the given event ID for replay.
	GetEventsSince(username string, lastEventID string) ([]Event, error)
}

// EventStore defines the interface for storing and retrieving events.
type EventStore interface {
	// Store saves an event for later replay.
	Store(event Event) error
	// GetSince returns events after the given event ID.
	GetSince(username string, eventID string, limit int) ([]Event, error)
	// Recent returns the newest events across all accounts, oldest first.
	Recent(limit int) []Event
	// Cleanup removes events older than the given duration.
	Cleanup(olderThan time.Duration) error
}

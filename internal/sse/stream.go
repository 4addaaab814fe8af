// Package sse streams audit events over Server-Sent Events. Admins watch
// one account's audit trail live, with replay of missed events through the
// standard Last-Event-ID mechanism.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkam25/intelplatform/internal/events"
)

// ErrTooManyConnections is returned when the stream limit is reached.
var ErrTooManyConnections = errors.New("sse: connection limit reached")

// Middleware is an interface for HTTP middleware
type Middleware func(http.Handler) http.Handler

// RegisterRoutes mounts the audit trail under /admin/audit. Both routes
// require an authenticated admin.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware, adminMiddleware Middleware) {
	r.Route("/admin/audit", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Get("/{username}", handler.HandleRecent)
		r.Get("/{username}/stream", handler.HandleStream)
	})
}

// Config holds stream tuning knobs.
type Config struct {
	// HeartbeatInterval is the time between keep-alive comments.
	HeartbeatInterval time.Duration
	// ConnectionTimeout closes a stream after this duration; the client
	// reconnects and replays via Last-Event-ID.
	ConnectionTimeout time.Duration
	// MaxConnections caps concurrent streams across all clients.
	MaxConnections int
}

// DefaultConfig returns the standard stream settings.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ConnectionTimeout: 30 * time.Minute,
		MaxConnections:    100,
	}
}

// Handler serves the audit event stream.
type Handler struct {
	config Config
	bus    events.EventBus
	logger *slog.Logger

	mu   sync.Mutex
	open int
}

// NewHandler creates a stream handler on the given bus.
func NewHandler(config Config, bus events.EventBus, logger *slog.Logger) *Handler {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if config.ConnectionTimeout <= 0 {
		config.ConnectionTimeout = DefaultConfig().ConnectionTimeout
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = DefaultConfig().MaxConnections
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{config: config, bus: bus, logger: logger}
}

// HandleStream handles GET /api/v1/admin/audit/{username}/stream.
// Authentication and the admin gate run in the route middleware.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	if err := h.acquire(); err != nil {
		http.Error(w, "too many open streams", http.StatusServiceUnavailable)
		return
	}
	defer h.release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Serialize writes: replay, live delivery, and heartbeats share the wire.
	var writeMu sync.Mutex
	send := func(e events.Event) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		if _, err := fmt.Fprint(w, formatEvent(e)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	// Replay missed events. An absent Last-Event-ID yields the recent tail.
	missed, err := h.bus.GetEventsSince(username, r.Header.Get("Last-Event-ID"))
	if err == nil {
		for _, e := range missed {
			if err := send(e); err != nil {
				return
			}
		}
	}

	gone := make(chan struct{}, 1)
	unsubscribe := h.bus.Subscribe(username, func(e events.Event) {
		if err := send(e); err != nil {
			select {
			case gone <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(h.config.HeartbeatInterval)
	defer heartbeat.Stop()
	timeout := time.NewTimer(h.config.ConnectionTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-gone:
			return
		case <-timeout.C:
			return
		case <-heartbeat.C:
			writeMu.Lock()
			_, err := fmt.Fprint(w, ": keep-alive\n\n")
			if err == nil {
				flusher.Flush()
			}
			writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// HandleRecent handles GET /api/v1/admin/audit/{username}, the
// non-streaming view of the same trail.
func (h *Handler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		http.Error(w, "username required", http.StatusBadRequest)
		return
	}

	trail, err := h.bus.GetEventsSince(username, "")
	if err != nil {
		http.Error(w, "failed to load audit trail", http.StatusInternalServerError)
		return
	}
	if trail == nil {
		trail = []events.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"data":      trail,
		"timestamp": time.Now().UTC(),
	})
}

func (h *Handler) acquire() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.open >= h.config.MaxConnections {
		return ErrTooManyConnections
	}
	h.open++
	return nil
}

func (h *Handler) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open--
}

// OpenStreams reports the number of active streams.
func (h *Handler) OpenStreams() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// formatEvent renders one event as an SSE message:
// event: <action>\ndata: <json>\nid: <id>\n\n
func formatEvent(e events.Event) string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("event: %s\ndata: %s\nid: %s\n\n", e.Action, data, e.ID)
}

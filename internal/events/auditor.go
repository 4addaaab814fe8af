package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arturkam25/intelplatform/internal/logger"
	"github.com/arturkam25/intelplatform/internal/metrics"
)

// Auditor records account lifecycle actions onto the event bus and the
// structured log. It satisfies the account package's Auditor interface.
type Auditor struct {
	bus    EventBus
	logger *slog.Logger
}

// NewAuditor creates an Auditor. A nil bus drops events and only logs.
func NewAuditor(bus EventBus, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{bus: bus, logger: log}
}

// Record publishes one audit event. Failures are logged and swallowed;
// auditing never fails the action being audited.
func (a *Auditor) Record(ctx context.Context, action, username, detail string) {
	event := Event{
		ID:            uuid.New().String(),
		Action:        action,
		Username:      username,
		Detail:        detail,
		CorrelationID: logger.GetCorrelationID(ctx),
		Timestamp:     time.Now().UTC(),
	}

	metrics.RecordAuditAction(action)

	if a.bus != nil {
		if err := a.bus.Publish(event); err != nil {
			a.logger.Warn("audit publish failed", "action", action, "error", err)
		}
	}

	attrs := []any{
		slog.String("action", action),
		slog.String("username", username),
	}
	if detail != "" {
		attrs = append(attrs, slog.String("detail", detail))
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, slog.String("correlation_id", event.CorrelationID))
	}
	a.logger.Info("audit", attrs...)
}

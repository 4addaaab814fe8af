package metrics

import (
	"github.com/arturkam25/intelplatform/internal/account"
)

// RecordAuditAction bumps the audit counter and the per-domain counters
// derived from the action name.
func RecordAuditAction(action string) {
	AuditEventsTotal.WithLabelValues(action).Inc()

	switch action {
	case account.AuditRegistered:
		RegistrationsTotal.Inc()
	case account.AuditLoginSucceeded:
		LoginAttemptsTotal.WithLabelValues("success").Inc()
	case account.AuditLoginFailed:
		LoginAttemptsTotal.WithLabelValues("failure").Inc()
	case account.AuditLocked:
		LockoutsTotal.Inc()
	case account.AuditRecovered:
		RecoveriesTotal.WithLabelValues("recovery").Inc()
	case account.AuditPasswordReset:
		RecoveriesTotal.WithLabelValues("admin_reset").Inc()
	}
}

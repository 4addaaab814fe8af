package account

import "context"

// Audit actions recorded by the service on every state transition.
const (
	AuditRegistered      = "account.registered"
	AuditLoginSucceeded  = "account.login_succeeded"
	AuditLoginFailed     = "account.login_failed"
	AuditLocked          = "account.locked"
	AuditUnlocked        = "account.unlocked"
	AuditPasswordChanged = "account.password_changed"
	AuditPasswordReset   = "account.password_reset"
	AuditRecovered       = "account.recovered"
	AuditRenamed         = "account.renamed"
	AuditDeleted         = "account.deleted"
)

// Auditor receives security audit entries. Recording must never fail the
// operation being audited; implementations swallow their own errors.
type Auditor interface {
	Record(ctx context.Context, action, username, detail string)
}

// NopAuditor discards audit entries.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, string, string, string) {}

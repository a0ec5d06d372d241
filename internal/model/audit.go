package model

import "time"

// Severity classifies audit events.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// AuditLogEntry is an append-only security event record
type AuditLogEntry struct {
	ID        string                 `json:"id"`
	EventType string                 `json:"eventType"`
	AccountID *string                `json:"accountId,omitempty"`
	IP        string                 `json:"ip"`
	UserAgent string                 `json:"userAgent"`
	Severity  Severity               `json:"severity"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Audit event types (closed taxonomy)
const (
	AuditLoginSuccess        = "LOGIN_SUCCESS"
	AuditLoginFailed         = "LOGIN_FAILED"
	AuditLoginBlockedIP      = "LOGIN_REJECTED_BLOCKED_IP"
	AuditLoginLocked         = "LOGIN_REJECTED_LOCKED"
	AuditAccountLocked       = "ACCOUNT_LOCKED"
	AuditTwoFactorFailed     = "TWO_FACTOR_FAILED"
	AuditTwoFactorEnabled    = "TWO_FACTOR_ENABLED"
	AuditTwoFactorDisabled   = "TWO_FACTOR_DISABLED"
	AuditBackupCodeUsed      = "BACKUP_CODE_USED"
	AuditSessionCreated      = "SESSION_CREATED"
	AuditSessionInvalidated  = "SESSION_INVALIDATED"
	AuditSessionIPMismatch   = "SESSION_IP_MISMATCH"
	AuditSecurityIPBlocked   = "SECURITY_IP_BLOCKED"
	AuditSecurityIPUnblocked = "SECURITY_IP_UNBLOCKED"
	AuditAccessDenied        = "ACCESS_DENIED"
	AuditAdminRouteAccess    = "ADMIN_ROUTE_ACCESS"
	AuditRealtimeAuthFailed  = "REALTIME_AUTH_FAILED"
	AuditRealtimeAdminClosed = "REALTIME_ADMIN_DISCONNECTED"
	AuditPasswordChanged     = "PASSWORD_CHANGED"
	AuditSystemError         = "SYSTEM_ERROR"
)

// severityByEvent maps each event type to its severity. Events absent
// from the table default to MEDIUM.
var severityByEvent = map[string]Severity{
	AuditLoginSuccess:        SeverityInfo,
	AuditSessionCreated:      SeverityInfo,
	AuditSessionInvalidated:  SeverityInfo,
	AuditAdminRouteAccess:    SeverityInfo,
	AuditTwoFactorEnabled:    SeverityInfo,
	AuditTwoFactorDisabled:   SeverityLow,
	AuditBackupCodeUsed:      SeverityLow,
	AuditRealtimeAdminClosed: SeverityLow,
	AuditLoginFailed:         SeverityMedium,
	AuditTwoFactorFailed:     SeverityMedium,
	AuditAccessDenied:        SeverityMedium,
	AuditSessionIPMismatch:   SeverityHigh,
	AuditAccountLocked:       SeverityHigh,
	AuditSecurityIPBlocked:   SeverityHigh,
	AuditSecurityIPUnblocked: SeverityMedium,
	AuditLoginBlockedIP:      SeverityHigh,
	AuditSystemError:         SeverityCritical,
}

// SeverityFor returns the static severity for an event type.
func SeverityFor(eventType string) Severity {
	if sev, ok := severityByEvent[eventType]; ok {
		return sev
	}
	return SeverityMedium
}

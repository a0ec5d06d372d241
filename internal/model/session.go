package model

import "time"

// Session binds a signed token to a revocable, time-boxed, IP-associated
// login. The session manager's in-memory table owns these records.
type Session struct {
	ID             string    `json:"sessionId"`
	AccountID      string    `json:"accountId"`
	Role           Role      `json:"role"`
	SourceIP       string    `json:"sourceIp"`
	UserAgent      string    `json:"userAgent"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	IsActive       bool      `json:"isActive"`
}

// IsExpired checks if the session is past its expiry
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// Ref returns the denormalized form persisted on admin accounts
func (s *Session) Ref() SessionRef {
	return SessionRef{
		SessionID: s.ID,
		SourceIP:  s.SourceIP,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

// SessionRef is the read-only session copy persisted on admin accounts
// for audit and listing. Validity is always decided by the in-memory table.
type SessionRef struct {
	SessionID string    `json:"sessionId"`
	SourceIP  string    `json:"sourceIp"`
	UserAgent string    `json:"userAgent"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Invalidation reasons recorded when a session is destroyed.
const (
	InvalidateReasonLogout     = "logout"
	InvalidateReasonExpired    = "expired"
	InvalidateReasonRevoked    = "revoked"
	InvalidateReasonIPMismatch = "ip_mismatch"
)

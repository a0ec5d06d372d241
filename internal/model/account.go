package model

import (
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleCustomer        Role = "CUSTOMER"
	RoleSeller          Role = "SELLER"
	RoleSecurityAdmin   Role = "SECURITY_ADMIN"
	RoleOperationsAdmin Role = "OPERATIONS_ADMIN"
	RoleFinanceAdmin    Role = "FINANCE_ADMIN"
	RoleSuperAdmin      Role = "SUPER_ADMIN"
)

var adminRoles = map[Role]bool{
	RoleSecurityAdmin:   true,
	RoleOperationsAdmin: true,
	RoleFinanceAdmin:    true,
	RoleSuperAdmin:      true,
}

// IsAdminRole reports whether the role belongs to the admin bucket.
func IsAdminRole(r Role) bool {
	return adminRoles[r]
}

// ValidRole reports whether r is a member of the closed role enum.
func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleSecurityAdmin, RoleOperationsAdmin, RoleFinanceAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// BackupCode is a single-use 2FA recovery code. The code itself is stored
// as a SHA-256 hash of its normalized form.
type BackupCode struct {
	CodeHash string     `json:"codeHash"`
	UsedAt   *time.Time `json:"usedAt,omitempty"`
}

// IsUsed checks if the backup code has already been used
func (b *BackupCode) IsUsed() bool {
	return b.UsedAt != nil
}

// Account represents an operator, seller, or customer account
type Account struct {
	ID                 string       `json:"id"`
	Email              string       `json:"email"`
	DisplayName        string       `json:"displayName"`
	Role               Role         `json:"role"`
	Permissions        []string     `json:"permissions"`
	PasswordHash       string       `json:"-"` // never expose password hash
	IsActive           bool         `json:"isActive"`
	FailedLoginCount   int          `json:"-"`
	LockedUntil        *time.Time   `json:"-"`
	TwoFactorEnabled   bool         `json:"twoFactorEnabled"`
	TwoFactorSecret    string       `json:"-"` // never expose TOTP secret
	BackupCodes        []BackupCode `json:"-"`
	PasswordChangedAt  *time.Time   `json:"-"`
	IPWhitelist        []string     `json:"-"`
	RequireIPWhitelist bool         `json:"-"`
	LastLoginAt        *time.Time   `json:"lastLoginAt,omitempty"`
	LastLoginIP        string       `json:"-"`
	// ActiveSessions is the denormalized, persisted copy kept for admin
	// accounts only. The session manager's in-memory table is the source
	// of truth for validity.
	ActiveSessions []SessionRef `json:"-"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// IsLocked checks if the account is currently locked
func (a *Account) IsLocked() bool {
	if a.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*a.LockedUntil)
}

// HasPermission checks membership in the account's permission set
func (a *Account) HasPermission(perm string) bool {
	for _, p := range a.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// IPWhitelisted reports whether ip passes the account's whitelist policy.
// Accounts without RequireIPWhitelist always pass.
func (a *Account) IPWhitelisted(ip string) bool {
	if !a.RequireIPWhitelist {
		return true
	}
	for _, allowed := range a.IPWhitelist {
		if allowed == ip {
			return true
		}
	}
	return false
}

// SanitizedAccount is the account view safe to return to clients
type SanitizedAccount struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"displayName"`
	Role             Role       `json:"role"`
	Permissions      []string   `json:"permissions"`
	IsActive         bool       `json:"isActive"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
	LastLoginAt      *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Sanitize strips credential and secret fields from the account
func (a *Account) Sanitize() *SanitizedAccount {
	return &SanitizedAccount{
		ID:               a.ID,
		Email:            a.Email,
		DisplayName:      a.DisplayName,
		Role:             a.Role,
		Permissions:      a.Permissions,
		IsActive:         a.IsActive,
		TwoFactorEnabled: a.TwoFactorEnabled,
		LastLoginAt:      a.LastLoginAt,
		CreatedAt:        a.CreatedAt,
	}
}

// Identity is the resolved caller of an authenticated request or
// realtime connection.
type Identity struct {
	AccountID   string   `json:"accountId"`
	Role        Role     `json:"role"`
	Permissions []string `json:"permissions"`
	SessionID   string   `json:"sessionId"`
}

// HasPermission checks membership in the identity's permission snapshot
func (i *Identity) HasPermission(perm string) bool {
	for _, p := range i.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tradegate/tradegate/internal/database"
	"github.com/tradegate/tradegate/internal/model"
)

// AccountRepository handles account persistence
type AccountRepository struct {
	db *database.Postgres
}

// NewAccountRepository creates a new AccountRepository
func NewAccountRepository(db *database.Postgres) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, email, display_name, role, permissions, password_hash,
	is_active, failed_login_count, locked_until, two_factor_enabled,
	two_factor_secret, backup_codes, password_changed_at, ip_whitelist,
	require_ip_whitelist, last_login_at, last_login_ip, active_sessions,
	created_at, updated_at`

// GetByEmail fetches an account by its normalized email
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

// GetByID fetches an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, id))
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, a *model.Account) error {
	permissions, _ := json.Marshal(a.Permissions)
	backupCodes, _ := json.Marshal(a.BackupCodes)
	ipWhitelist, _ := json.Marshal(a.IPWhitelist)
	activeSessions, _ := json.Marshal(a.ActiveSessions)

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err := r.db.ExecContext(ctx, query,
		a.ID, strings.ToLower(a.Email), a.DisplayName, string(a.Role), permissions,
		a.PasswordHash, a.IsActive, a.FailedLoginCount, a.LockedUntil,
		a.TwoFactorEnabled, a.TwoFactorSecret, backupCodes, a.PasswordChangedAt,
		ipWhitelist, a.RequireIPWhitelist, a.LastLoginAt, a.LastLoginIP,
		activeSessions, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// IncrementFailedAttempts bumps the failure counter and returns the new count
func (r *AccountRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE accounts
		SET failed_login_count = failed_login_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING failed_login_count
	`
	var count int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment failed attempts: %w", err)
	}
	return count, nil
}

// ResetFailedAttempts clears the failure counter and any lock
func (r *AccountRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	query := `
		UPDATE accounts
		SET failed_login_count = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reset failed attempts: %w", err)
	}
	return nil
}

// SetLockedUntil locks the account until the given time
func (r *AccountRepository) SetLockedUntil(ctx context.Context, id string, until time.Time) error {
	query := `UPDATE accounts SET locked_until = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, until)
	if err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

// RecordLogin stores the last successful login time and source IP
func (r *AccountRepository) RecordLogin(ctx context.Context, id, ip string, at time.Time) error {
	query := `
		UPDATE accounts
		SET last_login_at = $2, last_login_ip = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, at, ip)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// SaveTwoFactor persists the account's 2FA state: secret, enabled flag,
// and backup codes.
func (r *AccountRepository) SaveTwoFactor(ctx context.Context, id, secret string, enabled bool, codes []model.BackupCode) error {
	backupCodes, _ := json.Marshal(codes)
	query := `
		UPDATE accounts
		SET two_factor_secret = $2, two_factor_enabled = $3, backup_codes = $4, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, secret, enabled, backupCodes)
	if err != nil {
		return fmt.Errorf("failed to save two-factor state: %w", err)
	}
	return nil
}

// SaveBackupCodes replaces the account's backup code set
func (r *AccountRepository) SaveBackupCodes(ctx context.Context, id string, codes []model.BackupCode) error {
	backupCodes, _ := json.Marshal(codes)
	query := `UPDATE accounts SET backup_codes = $2, updated_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, backupCodes)
	if err != nil {
		return fmt.Errorf("failed to save backup codes: %w", err)
	}
	return nil
}

// AppendSessionRef adds a denormalized session copy to an admin account
func (r *AccountRepository) AppendSessionRef(ctx context.Context, id string, ref model.SessionRef) error {
	refJSON, _ := json.Marshal(ref)
	query := `
		UPDATE accounts
		SET active_sessions = active_sessions || $2::jsonb, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, refJSON)
	if err != nil {
		return fmt.Errorf("failed to append session ref: %w", err)
	}
	return nil
}

// RemoveSessionRef drops a denormalized session copy from an admin account
func (r *AccountRepository) RemoveSessionRef(ctx context.Context, id, sessionID string) error {
	query := `
		UPDATE accounts
		SET active_sessions = COALESCE(
			(SELECT jsonb_agg(s) FROM jsonb_array_elements(active_sessions) s
			 WHERE s->>'sessionId' <> $2),
			'[]'::jsonb
		), updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, sessionID)
	if err != nil {
		return fmt.Errorf("failed to remove session ref: %w", err)
	}
	return nil
}

func (r *AccountRepository) scanAccount(row *sql.Row) (*model.Account, error) {
	var a model.Account
	var role string
	var permissions, backupCodes, ipWhitelist, activeSessions []byte
	var lastLoginIP sql.NullString

	err := row.Scan(
		&a.ID, &a.Email, &a.DisplayName, &role, &permissions, &a.PasswordHash,
		&a.IsActive, &a.FailedLoginCount, &a.LockedUntil, &a.TwoFactorEnabled,
		&a.TwoFactorSecret, &backupCodes, &a.PasswordChangedAt, &ipWhitelist,
		&a.RequireIPWhitelist, &a.LastLoginAt, &lastLoginIP, &activeSessions,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	a.Role = model.Role(role)
	a.LastLoginIP = lastLoginIP.String
	if err := json.Unmarshal(permissions, &a.Permissions); err != nil {
		a.Permissions = nil
	}
	if err := json.Unmarshal(backupCodes, &a.BackupCodes); err != nil {
		a.BackupCodes = nil
	}
	if err := json.Unmarshal(ipWhitelist, &a.IPWhitelist); err != nil {
		a.IPWhitelist = nil
	}
	if err := json.Unmarshal(activeSessions, &a.ActiveSessions); err != nil {
		a.ActiveSessions = nil
	}
	return &a, nil
}

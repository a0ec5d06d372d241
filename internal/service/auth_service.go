package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/tradegate/tradegate/internal/audit"
	"github.com/tradegate/tradegate/internal/auth"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/logger"
	"github.com/tradegate/tradegate/internal/model"
	"github.com/tradegate/tradegate/internal/repository"
	"github.com/tradegate/tradegate/internal/session"
)

// Common service errors
var (
	ErrBlockedIP          = errors.New("requests from this address are blocked")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is not active")
	ErrInvalidTwoFactor   = errors.New("invalid two-factor code")
	ErrTwoFactorNotSetUp  = errors.New("two-factor authentication is not set up")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrPasswordChanged    = errors.New("password changed after token was issued")
	ErrSessionMismatch    = errors.New("session does not match token")
)

// Suspicious event types fed into the IP monitor.
const (
	suspiciousAccountNotFound  = "ACCOUNT_NOT_FOUND"
	suspiciousInvalidPassword  = "INVALID_PASSWORD"
	suspiciousInvalid2FA       = "INVALID_2FA"
	suspiciousIPNotWhitelisted = "IP_NOT_WHITELISTED"
)

// AccountStore is the persistence contract for account records. The
// authenticator needs credential verification state, not the storage
// engine behind it.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	GetByID(ctx context.Context, id string) (*model.Account, error)
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	SetLockedUntil(ctx context.Context, id string, until time.Time) error
	RecordLogin(ctx context.Context, id, ip string, at time.Time) error
	SaveTwoFactor(ctx context.Context, id, secret string, enabled bool, codes []model.BackupCode) error
	SaveBackupCodes(ctx context.Context, id string, codes []model.BackupCode) error
}

// AuthService is the credential authenticator: password + optional TOTP
// second factor, session minting, and token verification.
type AuthService struct {
	accounts AccountStore
	sessions *session.Manager
	tokenSvc *auth.TokenService
	sink     audit.Recorder
	cfg      *config.Config
	log      *logger.Logger

	// twoFactorLocks serializes 2FA verification per account so a backup
	// code cannot be spent twice by concurrent requests.
	twoFactorLocks sync.Map // accountID -> *sync.Mutex
}

// NewAuthService creates a new AuthService
func NewAuthService(accounts AccountStore, sessions *session.Manager, tokenSvc *auth.TokenService, sink audit.Recorder, cfg *config.Config, log *logger.Logger) *AuthService {
	return &AuthService{
		accounts: accounts,
		sessions: sessions,
		tokenSvc: tokenSvc,
		sink:     sink,
		cfg:      cfg,
		log:      log.WithComponent("auth_service"),
	}
}

// LoginRequest contains the data for a login attempt
type LoginRequest struct {
	Email         string
	Password      string
	TwoFactorCode string
	IP            string
	UserAgent     string
}

// LoginResult is either a completed login or a two-factor challenge.
// Requires2FA is a re-prompt signal, not a failure: no session exists yet.
type LoginResult struct {
	Requires2FA bool                    `json:"requires2FA,omitempty"`
	Token       string                  `json:"token,omitempty"`
	SessionID   string                  `json:"sessionId,omitempty"`
	ExpiresAt   time.Time               `json:"expiresAt,omitempty"`
	Account     *model.SanitizedAccount `json:"account,omitempty"`
}

// Login runs the full authentication gate sequence: IP block check,
// credential check, optional second factor, session issue. A blocked IP
// is rejected before credentials are ever inspected so the blocklist
// cannot be used as a credential-validity oracle.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	// IP gate
	if s.sessions.IsIPBlocked(req.IP) {
		s.sink.Record(ctx, model.AuditLoginBlockedIP, "", req.IP, req.UserAgent, map[string]interface{}{
			"email": email,
		})
		return nil, ErrBlockedIP
	}

	// Credential gate
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.sessions.MonitorSuspiciousActivity(ctx, req.IP, suspiciousAccountNotFound, "")
			s.sink.Record(ctx, model.AuditLoginFailed, "", req.IP, req.UserAgent, map[string]interface{}{
				"email":  email,
				"reason": "account_not_found",
			})
			// Same rejection as a wrong password: callers never learn
			// whether the account exists.
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if account.IsLocked() {
		s.sink.Record(ctx, model.AuditLoginLocked, account.ID, req.IP, req.UserAgent, map[string]interface{}{
			"locked_until": account.LockedUntil,
		})
		return nil, ErrAccountLocked
	}

	if !account.IsActive {
		s.sink.Record(ctx, model.AuditLoginFailed, account.ID, req.IP, req.UserAgent, map[string]interface{}{
			"reason": "account_inactive",
		})
		return nil, ErrAccountInactive
	}

	if !account.IPWhitelisted(req.IP) {
		s.sessions.MonitorSuspiciousActivity(ctx, req.IP, suspiciousIPNotWhitelisted, account.ID)
		s.sink.Record(ctx, model.AuditLoginFailed, account.ID, req.IP, req.UserAgent, map[string]interface{}{
			"reason": "ip_not_whitelisted",
		})
		return nil, ErrInvalidCredentials
	}

	match, err := auth.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		s.handleFailedPassword(ctx, account, req)
		return nil, ErrInvalidCredentials
	}

	// Second-factor gate
	if account.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			// Distinguished re-prompt: correct password, code missing.
			return &LoginResult{Requires2FA: true}, nil
		}
		if err := s.verifySecondFactor(ctx, account, req.TwoFactorCode, req.IP, req.UserAgent); err != nil {
			return nil, err
		}
	}

	// Session issue
	return s.issueSession(ctx, account, req.IP, req.UserAgent)
}

func (s *AuthService) handleFailedPassword(ctx context.Context, account *model.Account, req LoginRequest) {
	attempts, err := s.accounts.IncrementFailedAttempts(ctx, account.ID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to increment failed attempts")
	}

	if attempts >= s.cfg.Security.Lockout.MaxFailedAttempts {
		until := time.Now().Add(s.cfg.Security.Lockout.Duration)
		if err := s.accounts.SetLockedUntil(ctx, account.ID, until); err != nil {
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to lock account")
		}
		s.sink.Record(ctx, model.AuditAccountLocked, account.ID, req.IP, req.UserAgent, map[string]interface{}{
			"failed_attempts": attempts,
			"locked_until":    until,
		})
	}

	s.sessions.MonitorSuspiciousActivity(ctx, req.IP, suspiciousInvalidPassword, account.ID)
	s.sink.Record(ctx, model.AuditLoginFailed, account.ID, req.IP, req.UserAgent, map[string]interface{}{
		"reason":          "invalid_password",
		"failed_attempts": attempts,
	})
}

// verifySecondFactor checks a TOTP code and falls back to the unused
// backup codes, consuming one on match. Per-account serialization keeps a
// backup code single-use under concurrent requests.
func (s *AuthService) verifySecondFactor(ctx context.Context, account *model.Account, code, ip, userAgent string) error {
	lock := s.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	if auth.ValidateTOTP(code, account.TwoFactorSecret, s.cfg.TOTP) {
		return nil
	}

	for i := range account.BackupCodes {
		bc := &account.BackupCodes[i]
		if bc.IsUsed() {
			continue
		}
		if auth.BackupCodeMatches(code, bc.CodeHash) {
			now := time.Now()
			bc.UsedAt = &now
			if err := s.accounts.SaveBackupCodes(ctx, account.ID, account.BackupCodes); err != nil {
				return fmt.Errorf("failed to consume backup code: %w", err)
			}
			s.sink.Record(ctx, model.AuditBackupCodeUsed, account.ID, ip, userAgent, map[string]interface{}{
				"remaining": countUnused(account.BackupCodes),
			})
			return nil
		}
	}

	s.sessions.MonitorSuspiciousActivity(ctx, ip, suspiciousInvalid2FA, account.ID)
	s.sink.Record(ctx, model.AuditTwoFactorFailed, account.ID, ip, userAgent, nil)
	return ErrInvalidTwoFactor
}

func (s *AuthService) issueSession(ctx context.Context, account *model.Account, ip, userAgent string) (*LoginResult, error) {
	if err := s.accounts.ResetFailedAttempts(ctx, account.ID); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to reset failed attempts")
	}

	now := time.Now()
	if err := s.accounts.RecordLogin(ctx, account.ID, ip, now); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to record login")
	}

	sess, err := s.sessions.CreateSession(ctx, account, ip, userAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	token, expiresAt, err := s.tokenSvc.Sign(account.ID, account.Role, account.Permissions, sess.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.sink.Record(ctx, model.AuditLoginSuccess, account.ID, ip, userAgent, map[string]interface{}{
		"session_id": sess.ID,
		"role":       string(account.Role),
	})
	s.log.Info().Str("account_id", account.ID).Str("role", string(account.Role)).Msg("login succeeded")

	return &LoginResult{
		Token:     token,
		SessionID: sess.ID,
		ExpiresAt: expiresAt,
		Account:   account.Sanitize(),
	}, nil
}

// ValidateToken verifies the token signature, re-fetches the account, and
// re-validates the session. A password change after token issue forces
// re-login by revoking the session.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString, sessionID, ip, userAgent string) (*model.Identity, error) {
	claims, err := s.tokenSvc.Verify(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if sessionID != "" && sessionID != claims.SessionID {
		return nil, ErrSessionMismatch
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}

	sess, err := s.sessions.ValidateSession(ctx, claims.SessionID, ip, userAgent)
	if err != nil {
		return nil, err
	}

	if account.PasswordChangedAt != nil && claims.IssuedAt != nil &&
		account.PasswordChangedAt.After(claims.IssuedAt.Time) {
		if err := s.sessions.InvalidateSession(ctx, sess.ID, model.InvalidateReasonRevoked); err != nil {
			s.log.Error().Err(err).Str("session_id", sess.ID).Msg("failed to revoke stale session")
		}
		return nil, ErrPasswordChanged
	}

	return &model.Identity{
		AccountID:   account.ID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		SessionID:   sess.ID,
	}, nil
}

// Logout invalidates the session. The token stays signature-valid but is
// dead for all gated calls.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.InvalidateSession(ctx, sessionID, model.InvalidateReasonLogout)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return err
	}
	return nil
}

// TwoFactorSetup carries the provisioning data returned by Setup2FA.
type TwoFactorSetup struct {
	Secret     string `json:"secret"`
	QRCode     string `json:"qrCode"` // base64-encoded PNG
	OTPAuthURL string `json:"otpauthUrl"`
}

// Setup2FA generates and persists an unconfirmed TOTP secret. The factor
// only becomes active after Enable2FA verifies one code against it.
func (s *AuthService) Setup2FA(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	key, err := auth.GenerateTOTPSecret(s.cfg.TOTP, account.Email)
	if err != nil {
		return nil, err
	}

	// Persist unconfirmed: secret stored, enabled stays false.
	if err := s.accounts.SaveTwoFactor(ctx, accountID, key.Secret(), false, nil); err != nil {
		return nil, fmt.Errorf("failed to persist pending secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	return &TwoFactorSetup{
		Secret:     key.Secret(),
		QRCode:     base64.StdEncoding.EncodeToString(png),
		OTPAuthURL: key.URL(),
	}, nil
}

// Enable2FA confirms the pending secret with one valid code, flips the
// factor on, and mints the single-use backup codes. The plaintext codes
// are returned exactly once.
func (s *AuthService) Enable2FA(ctx context.Context, accountID, code, ip, userAgent string) ([]string, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account.TwoFactorSecret == "" {
		return nil, ErrTwoFactorNotSetUp
	}

	if !auth.ValidateTOTP(code, account.TwoFactorSecret, s.cfg.TOTP) {
		s.sink.Record(ctx, model.AuditTwoFactorFailed, accountID, ip, userAgent, map[string]interface{}{
			"phase": "enable",
		})
		return nil, ErrInvalidTwoFactor
	}

	count := s.cfg.TOTP.BackupCodeCount
	plain := make([]string, count)
	codes := make([]model.BackupCode, count)
	for i := 0; i < count; i++ {
		plain[i] = auth.GenerateBackupCode()
		codes[i] = model.BackupCode{CodeHash: auth.HashBackupCode(plain[i])}
	}

	if err := s.accounts.SaveTwoFactor(ctx, accountID, account.TwoFactorSecret, true, codes); err != nil {
		return nil, fmt.Errorf("failed to enable two-factor auth: %w", err)
	}

	s.sink.Record(ctx, model.AuditTwoFactorEnabled, accountID, ip, userAgent, map[string]interface{}{
		"backup_codes": count,
	})
	s.log.Info().Str("account_id", accountID).Msg("two-factor auth enabled")
	return plain, nil
}

// Disable2FA turns the factor off. A currently-valid TOTP code is
// required; backup codes are for login recovery, not for weakening the
// account.
func (s *AuthService) Disable2FA(ctx context.Context, accountID, code, ip, userAgent string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if !account.TwoFactorEnabled {
		return ErrTwoFactorNotSetUp
	}

	if !auth.ValidateTOTP(code, account.TwoFactorSecret, s.cfg.TOTP) {
		s.sink.Record(ctx, model.AuditTwoFactorFailed, accountID, ip, userAgent, map[string]interface{}{
			"phase": "disable",
		})
		return ErrInvalidTwoFactor
	}

	if err := s.accounts.SaveTwoFactor(ctx, accountID, "", false, nil); err != nil {
		return fmt.Errorf("failed to disable two-factor auth: %w", err)
	}

	s.sink.Record(ctx, model.AuditTwoFactorDisabled, accountID, ip, userAgent, nil)
	s.log.Info().Str("account_id", accountID).Msg("two-factor auth disabled")
	return nil
}

func (s *AuthService) accountLock(accountID string) *sync.Mutex {
	actual, _ := s.twoFactorLocks.LoadOrStore(accountID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func countUnused(codes []model.BackupCode) int {
	n := 0
	for _, c := range codes {
		if !c.IsUsed() {
			n++
		}
	}
	return n
}

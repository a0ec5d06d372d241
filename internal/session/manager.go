package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/tradegate/tradegate/internal/audit"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/logger"
	"github.com/tradegate/tradegate/internal/model"
)

// Session manager errors. Validation failures map onto the rejection
// reasons callers surface to clients.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionInactive   = errors.New("session is inactive")
	ErrSessionExpired    = errors.New("session has expired")
	ErrSessionIPMismatch = errors.New("session source IP mismatch")
	ErrIPNotBlocked      = errors.New("ip is not blocked")
)

// AdminSessionStore persists the denormalized session copies kept on
// admin accounts.
type AdminSessionStore interface {
	AppendSessionRef(ctx context.Context, accountID string, ref model.SessionRef) error
	RemoveSessionRef(ctx context.Context, accountID, sessionID string) error
}

// SecurityNotifier receives security alerts for fan-out to connected
// admin clients. Implemented by the realtime gateway.
type SecurityNotifier interface {
	SecurityAlert(event string, data map[string]interface{})
}

// Manager owns the in-memory session table and the suspicious-IP table.
// The table is the revocation mechanism: a signed token stays
// cryptographically valid after logout, so validity is always decided here.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session

	suspiciousMu sync.Mutex
	suspicious   map[string]*model.SuspiciousIPRecord

	cfg      config.SessionConfig
	abuseCfg config.AbuseConfig
	store    AdminSessionStore
	sink     audit.Recorder
	log      *logger.Logger

	notifierMu sync.RWMutex
	notifier   SecurityNotifier

	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// NewManager creates a new session Manager
func NewManager(cfg config.SessionConfig, abuseCfg config.AbuseConfig, store AdminSessionStore, sink audit.Recorder, log *logger.Logger) *Manager {
	return &Manager{
		sessions:   make(map[string]*model.Session),
		suspicious: make(map[string]*model.SuspiciousIPRecord),
		cfg:        cfg,
		abuseCfg:   abuseCfg,
		store:      store,
		sink:       sink,
		log:        log.WithComponent("session_manager"),
	}
}

// SetNotifier wires the realtime gateway in after construction. The
// gateway depends on token validation which depends on this manager, so
// the link is set late.
func (m *Manager) SetNotifier(n SecurityNotifier) {
	m.notifierMu.Lock()
	m.notifier = n
	m.notifierMu.Unlock()
}

// CreateSession mints a fresh session for an authenticated account. Admin
// sessions get the short window and a denormalized persisted copy.
func (m *Manager) CreateSession(ctx context.Context, account *model.Account, ip, userAgent string) (*model.Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	window := m.cfg.StandardWindow
	if model.IsAdminRole(account.Role) {
		window = m.cfg.AdminWindow
	}

	sess := &model.Session{
		ID:             id,
		AccountID:      account.ID,
		Role:           account.Role,
		SourceIP:       ip,
		UserAgent:      userAgent,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(window),
		IsActive:       true,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	if model.IsAdminRole(account.Role) {
		if err := m.store.AppendSessionRef(ctx, account.ID, sess.Ref()); err != nil {
			m.log.Error().Err(err).Str("account_id", account.ID).Msg("failed to persist admin session ref")
		}
	}

	m.sink.Record(ctx, model.AuditSessionCreated, account.ID, ip, userAgent, map[string]interface{}{
		"session_id": id,
		"role":       string(account.Role),
		"expires_at": sess.ExpiresAt,
	})

	copied := *sess
	return &copied, nil
}

// ValidateSession checks liveness, expiry, and IP binding, refreshing
// lastActivityAt on success. Admin sessions are hard-bound to their source
// IP; a mismatch invalidates the session. Non-admin mismatches are logged
// only, tolerating mobile network changes.
func (m *Manager) ValidateSession(ctx context.Context, sessionID, ip, userAgent string) (*model.Session, error) {
	now := time.Now()

	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if !sess.IsActive {
		m.mu.Unlock()
		return nil, ErrSessionInactive
	}
	if now.After(sess.ExpiresAt) {
		delete(m.sessions, sessionID)
		sess.IsActive = false
		snapshot := *sess
		m.mu.Unlock()
		m.finishInvalidation(ctx, &snapshot, model.InvalidateReasonExpired)
		return nil, ErrSessionExpired
	}
	if ip != sess.SourceIP && model.IsAdminRole(sess.Role) {
		delete(m.sessions, sessionID)
		sess.IsActive = false
		snapshot := *sess
		m.mu.Unlock()
		m.sink.Record(ctx, model.AuditSessionIPMismatch, snapshot.AccountID, ip, userAgent, map[string]interface{}{
			"session_id":  sessionID,
			"session_ip":  snapshot.SourceIP,
			"request_ip":  ip,
			"role":        string(snapshot.Role),
			"consequence": "invalidated",
		})
		m.finishInvalidation(ctx, &snapshot, model.InvalidateReasonIPMismatch)
		return nil, ErrSessionIPMismatch
	}

	mismatch := ip != sess.SourceIP
	sess.LastActivityAt = now
	copied := *sess
	m.mu.Unlock()

	if mismatch {
		m.sink.Record(ctx, model.AuditSessionIPMismatch, copied.AccountID, ip, userAgent, map[string]interface{}{
			"session_id":  sessionID,
			"session_ip":  copied.SourceIP,
			"request_ip":  ip,
			"role":        string(copied.Role),
			"consequence": "tolerated",
		})
	}

	return &copied, nil
}

// InvalidateSession marks a session inactive and removes it from the table.
// Reason is one of the model.InvalidateReason constants.
func (m *Manager) InvalidateSession(ctx context.Context, sessionID, reason string) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	sess.IsActive = false
	snapshot := *sess
	m.mu.Unlock()

	m.finishInvalidation(ctx, &snapshot, reason)
	return nil
}

// finishInvalidation performs the off-lock side effects of removal: the
// denormalized admin copy cleanup and the audit record.
func (m *Manager) finishInvalidation(ctx context.Context, sess *model.Session, reason string) {
	if model.IsAdminRole(sess.Role) {
		if err := m.store.RemoveSessionRef(ctx, sess.AccountID, sess.ID); err != nil {
			m.log.Error().Err(err).Str("account_id", sess.AccountID).Msg("failed to remove admin session ref")
		}
	}

	m.sink.Record(ctx, model.AuditSessionInvalidated, sess.AccountID, sess.SourceIP, sess.UserAgent, map[string]interface{}{
		"session_id": sess.ID,
		"reason":     reason,
	})
}

// GetSession returns a copy of a live session without refreshing activity.
func (m *Manager) GetSession(sessionID string) (*model.Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.RUnlock()
		return nil, false
	}
	copied := *sess
	m.mu.RUnlock()
	return &copied, true
}

// SessionsForAccount returns copies of all live sessions for an account.
func (m *Manager) SessionsForAccount(accountID string) []model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Session
	for _, sess := range m.sessions {
		if sess.AccountID == accountID {
			out = append(out, *sess)
		}
	}
	return out
}

// SweepExpired removes every session past its expiry and returns the count.
func (m *Manager) SweepExpired(ctx context.Context) int {
	now := time.Now()

	m.mu.Lock()
	var expired []*model.Session
	for id, sess := range m.sessions {
		if now.After(sess.ExpiresAt) {
			delete(m.sessions, id)
			sess.IsActive = false
			snapshot := *sess
			expired = append(expired, &snapshot)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		m.finishInvalidation(ctx, sess, model.InvalidateReasonExpired)
	}

	if len(expired) > 0 {
		m.log.Info().Int("count", len(expired)).Msg("expired sessions swept")
	}
	return len(expired)
}

// StartSweeper launches the periodic expiry sweep. It runs until Stop is
// called or the parent context is cancelled.
func (m *Manager) StartSweeper(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(ctx)
	m.stopSweep = cancel
	m.sweepDone = make(chan struct{})

	go func() {
		defer close(m.sweepDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired(ctx)
			}
		}
	}()

	m.log.Info().Dur("interval", interval).Msg("session sweeper started")
}

// Stop cancels the sweeper and waits for it to exit.
func (m *Manager) Stop() {
	if m.stopSweep != nil {
		m.stopSweep()
		<-m.sweepDone
	}
}

// generateSessionID returns a 256-bit random identifier.
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/logger"
	"github.com/tradegate/tradegate/internal/model"
)

type stubStore struct {
	mu       sync.Mutex
	appended []model.SessionRef
	removed  []string
}

func (s *stubStore) AppendSessionRef(ctx context.Context, accountID string, ref model.SessionRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended = append(s.appended, ref)
	return nil
}

func (s *stubStore) RemoveSessionRef(ctx context.Context, accountID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, sessionID)
	return nil
}

type recordedEvent struct {
	EventType string
	AccountID string
	IP        string
	Data      map[string]interface{}
}

type recorderStub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorderStub) Record(ctx context.Context, eventType string, accountID, ip, userAgent string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{EventType: eventType, AccountID: accountID, IP: ip, Data: data})
}

func (r *recorderStub) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

func newTestManager() (*Manager, *stubStore, *recorderStub) {
	store := &stubStore{}
	sink := &recorderStub{}
	m := NewManager(
		config.SessionConfig{
			AdminWindow:    4 * time.Hour,
			StandardWindow: 24 * time.Hour,
			SweepInterval:  15 * time.Minute,
		},
		config.AbuseConfig{
			BlockThreshold: 3,
			Window:         time.Hour,
			HistorySize:    5,
		},
		store,
		sink,
		logger.New("error", "text"),
	)
	return m, store, sink
}

func adminAccount() *model.Account {
	return &model.Account{ID: "acc_admin", Role: model.RoleSecurityAdmin}
}

func customerAccount() *model.Account {
	return &model.Account{ID: "acc_cust", Role: model.RoleCustomer}
}

func TestCreateSessionWindows(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	admin, err := m.CreateSession(ctx, adminAccount(), "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("CreateSession admin: %v", err)
	}
	cust, err := m.CreateSession(ctx, customerAccount(), "10.0.0.2", "ua")
	if err != nil {
		t.Fatalf("CreateSession customer: %v", err)
	}

	adminWindow := admin.ExpiresAt.Sub(admin.CreatedAt)
	custWindow := cust.ExpiresAt.Sub(cust.CreatedAt)
	if adminWindow != 4*time.Hour {
		t.Errorf("admin window = %v, want 4h", adminWindow)
	}
	if custWindow != 24*time.Hour {
		t.Errorf("customer window = %v, want 24h", custWindow)
	}
	if len(admin.ID) != 64 {
		t.Errorf("session id length = %d, want 64 hex chars", len(admin.ID))
	}
}

func TestCreateSessionPersistsAdminRefOnly(t *testing.T) {
	m, store, sink := newTestManager()
	ctx := context.Background()

	if _, err := m.CreateSession(ctx, adminAccount(), "10.0.0.1", "ua"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.CreateSession(ctx, customerAccount(), "10.0.0.2", "ua"); err != nil {
		t.Fatal(err)
	}

	if len(store.appended) != 1 {
		t.Errorf("persisted refs = %d, want 1 (admin only)", len(store.appended))
	}
	if got := sink.count(model.AuditSessionCreated); got != 2 {
		t.Errorf("SESSION_CREATED events = %d, want 2", got)
	}
}

func TestValidateSessionRefreshesActivity(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	sess, _ := m.CreateSession(ctx, customerAccount(), "10.0.0.1", "ua")

	m.mu.Lock()
	m.sessions[sess.ID].LastActivityAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	got, err := m.ValidateSession(ctx, sess.ID, "10.0.0.1", "ua")
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if time.Since(got.LastActivityAt) > time.Minute {
		t.Error("lastActivityAt not refreshed on validation")
	}
}

func TestValidateSessionUnknownID(t *testing.T) {
	m, _, _ := newTestManager()
	if _, err := m.ValidateSession(context.Background(), "nope", "10.0.0.1", "ua"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestValidateSessionExpiredThenGone(t *testing.T) {
	m, _, sink := newTestManager()
	ctx := context.Background()

	sess, _ := m.CreateSession(ctx, customerAccount(), "10.0.0.1", "ua")

	m.mu.Lock()
	m.sessions[sess.ID].ExpiresAt = time.Now().Add(-time.Minute)
	m.mu.Unlock()

	if _, err := m.ValidateSession(ctx, sess.ID, "10.0.0.1", "ua"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("first validation err = %v, want ErrSessionExpired", err)
	}
	// The expired session is removed, so a retry cannot distinguish it
	// from a session that never existed.
	if _, err := m.ValidateSession(ctx, sess.ID, "10.0.0.1", "ua"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("second validation err = %v, want ErrSessionNotFound", err)
	}
	if got := sink.count(model.AuditSessionInvalidated); got != 1 {
		t.Errorf("SESSION_INVALIDATED events = %d, want 1", got)
	}
}

func TestValidateSessionAdminIPMismatchInvalidates(t *testing.T) {
	m, store, sink := newTestManager()
	ctx := context.Background()

	sess, _ := m.CreateSession(ctx, adminAccount(), "10.0.0.1", "ua")

	if _, err := m.ValidateSession(ctx, sess.ID, "192.168.1.9", "ua"); !errors.Is(err, ErrSessionIPMismatch) {
		t.Fatalf("err = %v, want ErrSessionIPMismatch", err)
	}
	if _, err := m.ValidateSession(ctx, sess.ID, "10.0.0.1", "ua"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("admin session should be destroyed after IP mismatch")
	}
	if got := sink.count(model.AuditSessionIPMismatch); got != 1 {
		t.Errorf("SESSION_IP_MISMATCH events = %d, want 1", got)
	}
	if len(store.removed) != 1 || store.removed[0] != sess.ID {
		t.Errorf("persisted ref not removed, got %v", store.removed)
	}
}

func TestValidateSessionNonAdminIPMismatchTolerated(t *testing.T) {
	m, _, sink := newTestManager()
	ctx := context.Background()

	sess, _ := m.CreateSession(ctx, customerAccount(), "10.0.0.1", "ua")

	got, err := m.ValidateSession(ctx, sess.ID, "192.168.1.9", "ua")
	if err != nil {
		t.Fatalf("non-admin IP change should be tolerated, got %v", err)
	}
	if got.SourceIP != "10.0.0.1" {
		t.Errorf("session source IP rewritten to %s", got.SourceIP)
	}
	if got := sink.count(model.AuditSessionIPMismatch); got != 1 {
		t.Errorf("SESSION_IP_MISMATCH events = %d, want 1 (logged, not enforced)", got)
	}
	if _, err := m.ValidateSession(ctx, sess.ID, "10.0.0.1", "ua"); err != nil {
		t.Errorf("session should survive a tolerated mismatch, got %v", err)
	}
}

func TestInvalidateSession(t *testing.T) {
	m, _, sink := newTestManager()
	ctx := context.Background()

	sess, _ := m.CreateSession(ctx, customerAccount(), "10.0.0.1", "ua")

	if err := m.InvalidateSession(ctx, sess.ID, model.InvalidateReasonLogout); err != nil {
		t.Fatalf("InvalidateSession: %v", err)
	}
	if err := m.InvalidateSession(ctx, sess.ID, model.InvalidateReasonLogout); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second invalidate err = %v, want ErrSessionNotFound", err)
	}
	if got := sink.count(model.AuditSessionInvalidated); got != 1 {
		t.Errorf("SESSION_INVALIDATED events = %d, want 1", got)
	}
}

func TestSweepExpired(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	s1, _ := m.CreateSession(ctx, customerAccount(), "10.0.0.1", "ua")
	s2, _ := m.CreateSession(ctx, customerAccount(), "10.0.0.2", "ua")
	live, _ := m.CreateSession(ctx, customerAccount(), "10.0.0.3", "ua")

	m.mu.Lock()
	m.sessions[s1.ID].ExpiresAt = time.Now().Add(-time.Minute)
	m.sessions[s2.ID].ExpiresAt = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	if got := m.SweepExpired(ctx); got != 2 {
		t.Errorf("swept = %d, want 2", got)
	}
	if _, err := m.ValidateSession(ctx, live.ID, "10.0.0.3", "ua"); err != nil {
		t.Errorf("live session swept: %v", err)
	}
}

func TestSessionsForAccount(t *testing.T) {
	m, _, _ := newTestManager()
	ctx := context.Background()

	acct := customerAccount()
	m.CreateSession(ctx, acct, "10.0.0.1", "ua")
	m.CreateSession(ctx, acct, "10.0.0.2", "ua")
	m.CreateSession(ctx, adminAccount(), "10.0.0.3", "ua")

	if got := len(m.SessionsForAccount(acct.ID)); got != 2 {
		t.Errorf("sessions for account = %d, want 2", got)
	}
	if got := len(m.SessionsForAccount("acc_missing")); got != 0 {
		t.Errorf("sessions for unknown account = %d, want 0", got)
	}
}

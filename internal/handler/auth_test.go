package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tradegate/tradegate/internal/auth"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/logger"
	"github.com/tradegate/tradegate/internal/model"
	"github.com/tradegate/tradegate/internal/repository"
	"github.com/tradegate/tradegate/internal/service"
	"github.com/tradegate/tradegate/internal/session"
)

const testPassword = "correct-horse-battery"

type stubAccounts struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

func (m *stubAccounts) put(a *model.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

func (m *stubAccounts) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			copied := *a
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *stubAccounts) GetByID(ctx context.Context, id string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *stubAccounts) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	a.FailedLoginCount++
	return a.FailedLoginCount, nil
}

func (m *stubAccounts) ResetFailedAttempts(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.FailedLoginCount = 0
		a.LockedUntil = nil
	}
	return nil
}

func (m *stubAccounts) SetLockedUntil(ctx context.Context, id string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.LockedUntil = &until
	}
	return nil
}

func (m *stubAccounts) RecordLogin(ctx context.Context, id, ip string, at time.Time) error {
	return nil
}

func (m *stubAccounts) SaveTwoFactor(ctx context.Context, id, secret string, enabled bool, codes []model.BackupCode) error {
	return nil
}

func (m *stubAccounts) SaveBackupCodes(ctx context.Context, id string, codes []model.BackupCode) error {
	return nil
}

func (m *stubAccounts) AppendSessionRef(ctx context.Context, accountID string, ref model.SessionRef) error {
	return nil
}

func (m *stubAccounts) RemoveSessionRef(ctx context.Context, accountID, sessionID string) error {
	return nil
}

type recorderStub struct {
	mu     sync.Mutex
	events []string
}

func (r *recorderStub) Record(ctx context.Context, eventType string, accountID, ip, userAgent string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func newTestHandler(t *testing.T) (*Handler, *stubAccounts, *session.Manager) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Security.Tokens = config.TokenConfig{
		AdminTokenTTL:    4 * time.Hour,
		StandardTokenTTL: 24 * time.Hour,
		Issuer:           "tradegate-test",
		SigningKeySeed:   "9d7e75a9d7e75a9d7e75a9d7e75a9d7e75a9d7e75a9d7e75a9d7e75a9d7e75a9",
	}
	cfg.Security.Sessions = config.SessionConfig{
		AdminWindow:    4 * time.Hour,
		StandardWindow: 24 * time.Hour,
		SweepInterval:  15 * time.Minute,
	}
	cfg.Security.Lockout = config.LockoutConfig{
		MaxFailedAttempts: 5,
		Duration:          2 * time.Hour,
	}
	cfg.Security.Abuse = config.AbuseConfig{
		BlockThreshold: 10,
		Window:         time.Hour,
		HistorySize:    50,
	}

	log := logger.New("error", "text")
	accounts := &stubAccounts{accounts: make(map[string]*model.Account)}
	sink := &recorderStub{}
	sessions := session.NewManager(cfg.Security.Sessions, cfg.Security.Abuse, accounts, sink, log)
	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	authSvc := service.NewAuthService(accounts, sessions, tokenSvc, sink, cfg, log)

	return New(nil, nil, log, cfg, authSvc, accounts, sessions, nil, nil), accounts, sessions
}

func seedHandlerAccount(t *testing.T, accounts *stubAccounts, id string, role model.Role) *model.Account {
	t.Helper()
	hash, err := auth.HashPassword(testPassword, nil)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	a := &model.Account{
		ID:           id,
		Email:        id + "@example.com",
		DisplayName:  "Test " + id,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	accounts.put(a)
	return a
}

func postLogin(t *testing.T, handlerFn http.HandlerFunc, path string, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.RemoteAddr = "10.0.0.1:50000"
	rec := httptest.NewRecorder()
	handlerFn(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return body
}

// Every rejection of the login gate sequence is 401; 403 is reserved for
// authenticated callers lacking a role or permission.
func TestLoginRejectionsAreUnauthorized(t *testing.T) {
	h, accounts, _ := newTestHandler(t)
	a := seedHandlerAccount(t, accounts, "acc_1", model.RoleCustomer)

	cases := []struct {
		name     string
		setup    func()
		password string
	}{
		{"wrong password", func() {}, "wrong"},
		{"locked account", func() {
			until := time.Now().Add(time.Hour)
			a.LockedUntil = &until
		}, testPassword},
		{"inactive account", func() {
			a.LockedUntil = nil
			a.IsActive = false
		}, testPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setup()
			rec := postLogin(t, h.Login, "/api/v1/auth/login", map[string]string{
				"email":    a.Email,
				"password": tc.password,
			})
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			body := decodeEnvelope(t, rec)
			if body["success"] != false || body["message"] == "" {
				t.Errorf("body = %v, want success:false with message", body)
			}
		})
	}
}

func TestLoginBlockedIPUnauthorized(t *testing.T) {
	h, accounts, sessions := newTestHandler(t)
	a := seedHandlerAccount(t, accounts, "acc_1", model.RoleCustomer)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		sessions.MonitorSuspiciousActivity(ctx, "10.0.0.1", "INVALID_PASSWORD", "")
	}

	rec := postLogin(t, h.Login, "/api/v1/auth/login", map[string]string{
		"email":    a.Email,
		"password": testPassword,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for a blocked source", rec.Code)
	}
}

func TestAdminLoginRejectsNonAdminAccount(t *testing.T) {
	h, accounts, sessions := newTestHandler(t)
	a := seedHandlerAccount(t, accounts, "acc_1", model.RoleCustomer)

	rec := postLogin(t, h.AdminLogin, "/api/v1/auth/admin/login", map[string]string{
		"email":    a.Email,
		"password": testPassword,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if got := len(sessions.SessionsForAccount(a.ID)); got != 0 {
		t.Errorf("live sessions = %d, want 0 after rejection", got)
	}
}

func TestAdminLoginIssuesSession(t *testing.T) {
	h, accounts, sessions := newTestHandler(t)
	a := seedHandlerAccount(t, accounts, "adm_1", model.RoleSuperAdmin)

	rec := postLogin(t, h.AdminLogin, "/api/v1/auth/admin/login", map[string]string{
		"email":    a.Email,
		"password": testPassword,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Token     string `json:"token"`
			SessionID string `json:"sessionId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	if !body.Success || body.Data.Token == "" || body.Data.SessionID == "" {
		t.Fatalf("body = %+v, want token and session id", body)
	}
	if got := len(sessions.SessionsForAccount(a.ID)); got != 1 {
		t.Errorf("live sessions = %d, want 1", got)
	}
}

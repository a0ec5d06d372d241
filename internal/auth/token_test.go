package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/model"
)

func tokenConfig() config.TokenConfig {
	return config.TokenConfig{
		AdminTokenTTL:    4 * time.Hour,
		StandardTokenTTL: 24 * time.Hour,
		Issuer:           "tradegate-test",
		SigningKeySeed:   "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
	}
}

func TestSignAndVerify(t *testing.T) {
	svc, err := NewTokenService(tokenConfig())
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	now := time.Now()
	token, expiry, err := svc.Sign("acc_1", model.RoleCustomer, []string{"VIEW_ANALYTICS"}, "sess_1", now)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "acc_1" {
		t.Errorf("subject = %q, want acc_1", claims.Subject)
	}
	if claims.Role != model.RoleCustomer {
		t.Errorf("role = %q, want CUSTOMER", claims.Role)
	}
	if claims.SessionID != "sess_1" {
		t.Errorf("sessionId = %q, want sess_1", claims.SessionID)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != "VIEW_ANALYTICS" {
		t.Errorf("permissions = %v", claims.Permissions)
	}

	wantExpiry := now.Add(24 * time.Hour)
	if expiry.Sub(wantExpiry) > time.Second || wantExpiry.Sub(expiry) > time.Second {
		t.Errorf("expiry = %v, want about %v", expiry, wantExpiry)
	}
}

func TestAdminTokenShorterTTL(t *testing.T) {
	svc, _ := NewTokenService(tokenConfig())
	now := time.Now()

	_, adminExpiry, err := svc.Sign("acc_1", model.RoleSuperAdmin, nil, "sess_1", now)
	if err != nil {
		t.Fatal(err)
	}
	_, stdExpiry, err := svc.Sign("acc_2", model.RoleSeller, nil, "sess_2", now)
	if err != nil {
		t.Fatal(err)
	}

	if got := adminExpiry.Sub(now); got != 4*time.Hour {
		t.Errorf("admin TTL = %v, want 4h", got)
	}
	if got := stdExpiry.Sub(now); got != 24*time.Hour {
		t.Errorf("standard TTL = %v, want 24h", got)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	svc, _ := NewTokenService(tokenConfig())
	token, _, _ := svc.Sign("acc_1", model.RoleCustomer, nil, "sess_1", time.Now())

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := svc.Verify(tampered); err == nil {
		t.Error("tampered token accepted")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc, _ := NewTokenService(tokenConfig())
	token, _, _ := svc.Sign("acc_1", model.RoleCustomer, nil, "sess_1", time.Now().Add(-48*time.Hour))
	if _, err := svc.Verify(token); err == nil {
		t.Error("expired token accepted")
	}
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	svc, _ := NewTokenService(tokenConfig())

	other := tokenConfig()
	other.SigningKeySeed = "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	otherSvc, _ := NewTokenService(other)

	token, _, _ := otherSvc.Sign("acc_1", model.RoleCustomer, nil, "sess_1", time.Now())
	if _, err := svc.Verify(token); err == nil {
		t.Error("token signed with a different key accepted")
	}
}

func TestVerifyRejectsUnboundToken(t *testing.T) {
	svc, _ := NewTokenService(tokenConfig())
	token, _, _ := svc.Sign("acc_1", model.RoleCustomer, nil, "", time.Now())
	if _, err := svc.Verify(token); err == nil {
		t.Error("token without a session binding accepted")
	}
}

func TestNewTokenServiceSeedValidation(t *testing.T) {
	cfg := tokenConfig()
	cfg.SigningKeySeed = "zzzz"
	if _, err := NewTokenService(cfg); err == nil {
		t.Error("invalid hex seed accepted")
	}

	cfg.SigningKeySeed = "abcd"
	if _, err := NewTokenService(cfg); err == nil {
		t.Error("short seed accepted")
	}

	// Empty seed falls back to an ephemeral key.
	cfg.SigningKeySeed = ""
	svc, err := NewTokenService(cfg)
	if err != nil {
		t.Fatalf("ephemeral key: %v", err)
	}
	token, _, _ := svc.Sign("acc_1", model.RoleCustomer, nil, "sess_1", time.Now())
	if _, err := svc.Verify(token); err != nil {
		t.Errorf("ephemeral round trip: %v", err)
	}
}

package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tradegate/tradegate/internal/config"
	"github.com/tradegate/tradegate/internal/model"
)

// TokenService signs and verifies access tokens. Every token is bound to
// a session id; signature validity alone never grants access because the
// session table is the revocation authority.
type TokenService struct {
	cfg        config.TokenConfig
	signingKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// TokenClaims represents the claims in an access token.
type TokenClaims struct {
	jwt.RegisteredClaims
	Role        model.Role `json:"role"`
	Permissions []string   `json:"permissions,omitempty"`
	SessionID   string     `json:"sessionId"`
}

// NewTokenService creates a new TokenService. A hex-encoded 32-byte seed
// in the config yields a stable key; an empty seed generates an ephemeral
// key for development.
func NewTokenService(cfg config.TokenConfig) (*TokenService, error) {
	var priv ed25519.PrivateKey

	if cfg.SigningKeySeed != "" {
		seed, err := hex.DecodeString(cfg.SigningKeySeed)
		if err != nil {
			return nil, fmt.Errorf("invalid signing key seed: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("signing key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		priv = ed25519.NewKeyFromSeed(seed)
	} else {
		var err error
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}

	return &TokenService{
		cfg:        cfg,
		signingKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// Sign creates an access token embedding the account identity and session
// id. Admin tokens use the shorter TTL.
func (s *TokenService) Sign(accountID string, role model.Role, permissions []string, sessionID string, issuedAt time.Time) (string, time.Time, error) {
	ttl := s.cfg.StandardTokenTTL
	if model.IsAdminRole(role) {
		ttl = s.cfg.AdminTokenTTL
	}
	expiry := issuedAt.Add(ttl)

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.New().String(),
		},
		Role:        role,
		Permissions: permissions,
		SessionID:   sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiry, nil
}

// Verify validates the token signature and expiry and returns the claims.
func (s *TokenService) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.publicKey, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}), jwt.WithIssuer(s.cfg.Issuer))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("token is not session-bound")
	}
	return claims, nil
}

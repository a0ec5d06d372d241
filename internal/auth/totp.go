package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tradegate/tradegate/internal/config"
)

const backupCodeLength = 8

// GenerateTOTPSecret creates a new TOTP key for an account. The returned
// key carries the shared secret and the provisioning URL.
func GenerateTOTPSecret(cfg config.TOTPConfig, accountEmail string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      cfg.Issuer,
		AccountName: accountEmail,
		Period:      uint(cfg.Period),
		Digits:      otp.Digits(cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key, nil
}

// ValidateTOTP verifies a time-based code against the secret with a drift
// window of two steps in either direction.
func ValidateTOTP(code, secret string, cfg config.TOTPConfig) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    uint(cfg.Period),
		Skew:      2,
		Digits:    otp.Digits(cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// GenerateBackupCode returns one random recovery code formatted xxxx-xxxx.
func GenerateBackupCode() string {
	const charset = "0123456789abcdefghjkmnpqrstuvwxyz" // no i, l, o to avoid confusion
	b := make([]byte, backupCodeLength)
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate random bytes for backup code")
	}
	code := make([]byte, backupCodeLength)
	for i := range code {
		code[i] = charset[int(b[i])%len(charset)]
	}
	return string(code[:4]) + "-" + string(code[4:])
}

// HashBackupCode returns the stored form of a backup code. Codes are
// matched case-insensitively and without separators.
func HashBackupCode(code string) string {
	hash := sha256.Sum256([]byte(normalizeBackupCode(code)))
	return hex.EncodeToString(hash[:])
}

// BackupCodeMatches compares a candidate against a stored hash in
// constant time.
func BackupCodeMatches(code, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashBackupCode(code)), []byte(storedHash)) == 1
}

func normalizeBackupCode(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

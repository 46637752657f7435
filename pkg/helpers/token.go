package helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

const recoveryTokenBytes = 32

// RecoveryTokens mints single-use tokens for email confirmation, password
// reset and account unlock. The raw value goes into the emailed link; only
// its SHA-256 digest is stored.
type RecoveryTokens struct {
	// ResetTTL is the validity window of password reset tokens.
	ResetTTL time.Duration
}

func NewRecoveryTokens(resetTTL time.Duration) *RecoveryTokens {
	return &RecoveryTokens{ResetTTL: resetTTL}
}

// Mint returns a fresh raw token and its digest.
func (t *RecoveryTokens) Mint() (raw string, hash string, err error) {
	b := make([]byte, recoveryTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, t.Hash(raw), nil
}

// Hash is deterministic so a stored digest can be looked up from the raw token.
func (t *RecoveryTokens) Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (t *RecoveryTokens) Matches(raw, storedHash string) bool {
	if raw == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(t.Hash(raw)), []byte(storedHash)) == 1
}

// ResetExpiry is the instant a reset token minted at now stops being valid.
func (t *RecoveryTokens) ResetExpiry(now time.Time) time.Time {
	return now.Add(t.ResetTTL)
}

package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const tokenBytes = 32

// NewToken returns an unguessable, URL-safe claim token. The token is the
// sole credential a new hire holds before authenticating, so it gets the
// same treatment as a password-reset token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken is the at-rest form of a claim token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// MaskToken renders a token for logs: first six characters only.
func MaskToken(raw string) string {
	if len(raw) <= 6 {
		return "******"
	}
	return raw[:6] + "…"
}

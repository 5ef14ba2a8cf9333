package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// RandomToken returns a hex-encoded string generated from n bytes of
// cryptographically secure random data. It is used to produce opaque
// password-reset tokens.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// HashToken returns the SHA-256 hash of an opaque token as a hex string.
// Only the hash is persisted, so a stolen database row cannot be replayed
// as the token itself.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

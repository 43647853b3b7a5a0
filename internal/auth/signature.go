// Package auth authenticates inbound change notifications and operator
// requests.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrMissingSecret is returned by RequireSecret when no signing secret is
// configured.
var ErrMissingSecret = errors.New("webhook signing secret is not configured")

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	return hex.EncodeToString(mac(payload, secret))
}

// Verify reports whether signature is the hex HMAC-SHA256 of the raw payload
// bytes under secret. It never panics and returns false for an empty
// secret, an empty or non-hex signature, or a signature of the wrong length.
// The payload must be the exact bytes received, before any JSON decoding.
func Verify(payload []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	presented, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(presented) != sha256.Size {
		return false
	}
	return hmac.Equal(presented, mac(payload, secret))
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. Anything else yields ok == false.
func BearerToken(header string) (token string, ok bool) {
	parts := strings.Split(strings.TrimSpace(header), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// TokenEqual compares two shared tokens in constant time.
func TokenEqual(presented, expected string) bool {
	if presented == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// RequireSecret fails when secret is blank so callers can refuse to serve
// unsigned events.
func RequireSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrMissingSecret
	}
	return nil
}

func mac(payload []byte, secret string) []byte {
	sum := hmac.New(sha256.New, []byte(secret))
	_, _ = sum.Write(payload)
	return sum.Sum(nil)
}

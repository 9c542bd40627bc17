// Package auth resolves inbound requests to a typed principal, via either a
// hashed API key or a bearer token verified against external public keys.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// KeyPrefixLen is how many leading characters of a raw key are kept for
// display. Long enough to show the sk_live_ marker plus a short fingerprint.
const KeyPrefixLen = 12

const keySecretBytes = 32

// GenerateKey returns a new raw API key secret. The raw value is shown to the
// caller exactly once; only HashKey's output and the display prefix persist.
func GenerateKey() (string, error) {
	buf := make([]byte, keySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return "sk_live_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateWebhookSecret returns a new signing secret for a webhook
// registration. Shown to the caller once at creation, never re-exposed.
func GenerateWebhookSecret() (string, error) {
	buf := make([]byte, keySecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return "whsec_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashKey returns the hex SHA-256 digest stored in place of the raw secret.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the display prefix for a raw key.
func KeyPrefix(raw string) string {
	if len(raw) < KeyPrefixLen {
		return raw
	}
	return raw[:KeyPrefixLen]
}

// Package webhook delivers signed job.completed callbacks on a best-effort
// basis.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex HMAC-SHA256 of the exact payload bytes under the
// webhook's secret. Receivers verify by recomputing over the raw body.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether sig matches the payload in constant time.
func VerifySignature(secret string, payload []byte, sig string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(sig))
}

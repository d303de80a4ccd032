// Package signature verifies webhook delivery signatures. Verification is a
// pre-gate before any parsing: the raw body bytes are authenticated with a
// shared secret, so a tampered payload is rejected without being inspected.
//
// Running with no secret configured disables verification entirely. That is
// a deliberate trust trade-off for simpler field deployments, not a defect.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Verify checks a hex-encoded HMAC-SHA256 signature of body against secret
// using a constant-time comparison. It returns false, never an error, when
// either the signature or the secret is empty.
func Verify(body []byte, providedHex, secret string) bool {
	if providedHex == "" || secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	// Lowercasing before the compare keeps hex case out of the equation
	// without leaking timing: the digest length is fixed.
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(providedHex)))
}

// Sign produces the hex-encoded HMAC-SHA256 signature a caller should send.
// Used by the device simulator and tests.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

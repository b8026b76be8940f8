package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 of body under secret. The digest
// is always computed over the exact bytes that go on the wire; re-serializing
// a parsed payload can reorder keys and silently break verification.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest for body and compares it against provided in
// constant time. It returns false on any mismatch, including a length
// mismatch, and never reveals the expected digest to the caller.
func Verify(secret string, body []byte, provided string) bool {
	expected := Sign(secret, body)
	if len(expected) != len(provided) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

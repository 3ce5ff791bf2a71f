package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Verify reports whether header carries a valid HMAC-SHA256 signature of body
// under secret, in Meta's "sha256=<hex>" form. The hex digest is compared
// as text in constant time, so it must be lowercase. An empty secret or
// header or a missing prefix yields false.
func Verify(body []byte, header, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	actual, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return false
	}

	expected := strings.TrimPrefix(Sign(body, secret), signaturePrefix)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}

// Sign returns the "sha256=<hex>" signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Package fingerprint derives stable digests of message text so the triage
// loop can tell whether a conversation has changed since it last looked.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Of returns the lowercase hex SHA-256 digest of the UTF-8 bytes of text.
// The text is hashed exactly as received; no trimming or case folding.
func Of(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether digest is the fingerprint of text.
func Matches(digest, text string) bool {
	return digest != "" && digest == Of(text)
}

// Package fingerprint computes content hashes used for fast change detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the lowercase hex SHA-256 of the exact UTF-8 bytes of text.
func Sum(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// Equal reports whether two fingerprints identify the same content. An empty
// fingerprint never matches.
func Equal(a, b string) bool {
	return a != "" && a == b
}

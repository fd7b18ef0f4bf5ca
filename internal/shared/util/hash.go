package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash returns the hex SHA-256 of b.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ETag returns a strong entity tag for a response body. Only the first 32 hex
// characters of the hash are used.
func ETag(body []byte) string {
	return `"` + ContentHash(body)[:32] + `"`
}

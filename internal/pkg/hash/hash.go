// Package hash provides hashing utilities.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256 computes the SHA256 hash of data and returns it as a hex string.
func SHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SHA256Short returns the first n characters of a SHA256 hash.
func SHA256Short(data []byte, n int) string {
	h := SHA256(data)
	if n > len(h) {
		return h
	}
	return h[:n]
}

// Key builds a short deterministic key from ordered parts.
// Parts are joined with a separator that cannot appear in the hex output,
// so ("ab", "c") and ("a", "bc") hash differently.
func Key(parts ...string) string {
	return SHA256Short([]byte(strings.Join(parts, "\x1f")), 32)
}

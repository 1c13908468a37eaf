// Package checksum fingerprints note content so unchanged notes can be
// skipped without comparing bodies.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String is Sum for text that is already a string, without copying it.
func String(s string) string {
	h := sha256.New()
	_, _ = io.Copy(h, strings.NewReader(s))
	return hex.EncodeToString(h.Sum(nil))
}

package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashString generates a SHA-256 hash of a string as lowercase hex
func HashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

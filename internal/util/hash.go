package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex is the identity hash for documents and chunks.
func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}


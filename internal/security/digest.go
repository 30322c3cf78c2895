package security

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Digest returns the BLAKE2b-256 digest of b.
func Digest(b []byte) []byte {
	sum := blake2b.Sum256(b)
	return sum[:]
}

// DigestHex returns Digest(b) hex-encoded.
func DigestHex(b []byte) string {
	return hex.EncodeToString(Digest(b))
}

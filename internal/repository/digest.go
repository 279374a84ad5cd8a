package repository

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// tokenDigest maps a token of any length to a fixed-size storage key.
func tokenDigest(token string) string {
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken keys cache entries by a digest so raw tokens never appear in
// cache keys.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

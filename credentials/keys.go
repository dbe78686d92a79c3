package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// KeyGenerator produces opaque tokens for credential records.
type KeyGenerator interface {
	NewKey() (string, error)
}

// KeyBytes is the entropy of generated keys.
const KeyBytes = 32

// RandomKeys generates hex encoded keys from crypto/rand. Uniqueness is left
// to the store's token indexes.
type RandomKeys struct{}

func (RandomKeys) NewKey() (string, error) {
	b := make([]byte, KeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// KeyFunc adapts a function to KeyGenerator.
type KeyFunc func() (string, error)

func (f KeyFunc) NewKey() (string, error) { return f() }

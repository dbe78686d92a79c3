package signer

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // HMAC-SHA1 is the protocol's signature method
	"encoding/base64"
)

// HMAC signs the base string with HMAC-SHA1 keyed by both secrets.
type HMAC struct{}

func (HMAC) Method() string { return MethodHMACSHA1 }

func (HMAC) Sign(baseString, clientSecret, credentialSecret string) (string, error) {
	mac := hmac.New(sha1.New, []byte(clientSecret+"&"+credentialSecret))
	if _, err := mac.Write([]byte(baseString)); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (HMAC) SecretDecode(encoded string) (string, error) {
	return SecretDecode(encoded)
}

// Equal compares two signatures in constant time.
func Equal(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

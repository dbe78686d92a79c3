// Package signer implements the message signing methods accepted by the
// credential protocol.
package signer

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Signature method names as carried in oauth_signature_method.
const (
	MethodPlaintext = "PLAINTEXT"
	MethodHMACSHA1  = "HMAC-SHA1"
	MethodRSASHA1   = "RSA-SHA1"
)

var (
	ErrInvalidSignatureMethod     = errors.New("invalid signature method")
	ErrUnsupportedSignatureMethod = errors.New("unsupported signature method")
	ErrInvalidSecret              = errors.New("invalid client secret encoding")
)

// Signer computes request signatures from the client and credential secrets.
type Signer interface {
	Method() string
	Sign(baseString, clientSecret, credentialSecret string) (string, error)
	// SecretDecode extracts the secret key from an encoded client secret.
	SecretDecode(encoded string) (string, error)
}

var registry = map[string]func() Signer{
	MethodPlaintext: func() Signer { return Plaintext{} },
	MethodHMACSHA1:  func() Signer { return HMAC{} },
}

// New returns the signer for method. An empty method selects PLAINTEXT.
func New(method string) (Signer, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = MethodPlaintext
	}

	if ctor, ok := registry[method]; ok {
		return ctor(), nil
	}

	if method == MethodRSASHA1 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSignatureMethod, method)
	}

	return nil, fmt.Errorf("%w: %q", ErrInvalidSignatureMethod, method)
}

// SecretDecode base64-decodes a composite "prefix:payload" secret and returns
// the payload.
func SecretDecode(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) < 2 {
		return "", ErrInvalidSecret
	}

	return parts[1], nil
}

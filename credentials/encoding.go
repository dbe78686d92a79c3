package credentials

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// The client identifies itself with two composite values:
//
//	client_id     = base64(username ":" restKey)
//	client_secret = base64(base64(nonce) ":" base64(password ":" restKey))
//
// The second segment of the decoded client_secret is the secret key the
// credential record is stored under.

// EncodeClientID builds the client_id for username.
func EncodeClientID(username, restKey string) string {
	return b64(username + ":" + restKey)
}

// EncodeClientSecret builds a client_secret. nonce varies per request while
// the secret key stays stable for a given password and rest key.
func EncodeClientSecret(nonce, password, restKey string) string {
	return b64(b64(nonce) + ":" + SecretKey(password, restKey))
}

// SecretKey is the stable part of a client secret.
func SecretKey(password, restKey string) string {
	return b64(password + ":" + restKey)
}

// DecodeClientID returns the username embedded in a client_id.
func DecodeClientID(clientID string) (string, error) {
	raw, err := unb64(clientID)
	if err != nil {
		return "", fmt.Errorf("decode client_id: %w", err)
	}

	user, _, _ := strings.Cut(raw, ":")
	if user == "" {
		return "", fmt.Errorf("decode client_id: %w", ErrMissingCredentials)
	}

	return user, nil
}

// DecodeClientPassword returns the password embedded in a client_secret.
func DecodeClientPassword(clientSecret string) (string, error) {
	raw, err := unb64(clientSecret)
	if err != nil {
		return "", fmt.Errorf("decode client_secret: %w", err)
	}

	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return "", fmt.Errorf("decode client_secret: %w", ErrMissingCredentials)
	}

	inner, err := unb64(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode client_secret: %w", err)
	}

	pw, _, _ := strings.Cut(inner, ":")
	if pw == "" {
		return "", fmt.Errorf("decode client_secret: %w", ErrMissingCredentials)
	}

	return pw, nil
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func unb64(s string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

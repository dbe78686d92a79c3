package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredentialRecordStale(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		rec  CredentialRecord
		want bool
	}{
		{"no dates", CredentialRecord{}, false},
		{"expiry exactly one hour ago", CredentialRecord{ExpirationDate: now.Add(-time.Hour)}, false},
		{"expiry one hour and a second ago", CredentialRecord{ExpirationDate: now.Add(-time.Hour - time.Second)}, true},
		{"temporary expiry stale", CredentialRecord{TemporaryExpirationDate: now.Add(-2 * time.Hour)}, true},
		{"future expiry", CredentialRecord{ExpirationDate: now.Add(time.Hour)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rec.Stale(now))
		})
	}
}

func TestCredentialRecordExpired(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, CredentialRecord{}.Expired(now))
	assert.True(t, CredentialRecord{ExpirationDate: now}.Expired(now))
	assert.False(t, CredentialRecord{ExpirationDate: now.Add(time.Second)}.Expired(now))
}

func TestCredentialTypeString(t *testing.T) {
	assert.Equal(t, "token", CredentialToken.String())
	assert.False(t, CredentialType(7).Valid())
	assert.Equal(t, "credential_type(7)", CredentialType(7).String())
}

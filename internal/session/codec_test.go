package session_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/journal-gateway/internal/session"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewCodec(t *testing.T) {
	tests := []struct {
		name      string
		secret    []byte
		assertErr assert.ErrorAssertionFunc
	}{
		{name: "valid secret", secret: testSecret, assertErr: assert.NoError},
		{name: "short secret", secret: []byte("too-short"), assertErr: assert.Error},
		{name: "nil secret", secret: nil, assertErr: assert.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.NewCodec(tt.secret, "test", time.Hour)
			tt.assertErr(t, err)
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := session.NewCodec(testSecret, "test", time.Hour)
	require.NoError(t, err)

	in := session.Session{
		User: session.User{Subject: "user-1", Name: "Ada Lovelace"},
		Secure: session.Credentials{
			AccessToken:  "access",
			RefreshToken: "refresh",
			IDToken:      "id",
			ExpiresAt:    1700000000000,
		},
	}

	raw, err := codec.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(raw, "."), "compact JWE has five segments")
	assert.NotContains(t, raw, "access")

	var out session.Session
	require.NoError(t, codec.Decode(raw, &out))
	assert.Equal(t, in, out)
}

func TestCodec_DecodeFailures(t *testing.T) {
	now := time.Now()
	codec, err := session.NewCodec(testSecret, "test", time.Minute, session.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	raw, err := codec.Encode(map[string]string{"k": "v"})
	require.NoError(t, err)

	otherPurpose, err := session.NewCodec(testSecret, "other", time.Minute)
	require.NoError(t, err)

	otherSecret, err := session.NewCodec([]byte("fedcba9876543210fedcba9876543210"), "test", time.Minute)
	require.NoError(t, err)

	later, err := session.NewCodec(testSecret, "test", time.Minute, session.WithClock(func() time.Time { return now.Add(2 * time.Minute) }))
	require.NoError(t, err)

	parts := strings.Split(raw, ".")
	ciphertext := []byte(parts[3])
	mid := len(ciphertext) / 2
	if ciphertext[mid] == 'A' {
		ciphertext[mid] = 'B'
	} else {
		ciphertext[mid] = 'A'
	}
	parts[3] = string(ciphertext)
	tampered := strings.Join(parts, ".")

	tests := []struct {
		name  string
		codec *session.Codec
		raw   string
	}{
		{name: "empty", codec: codec, raw: ""},
		{name: "garbage", codec: codec, raw: "not-a-token"},
		{name: "tampered ciphertext", codec: codec, raw: tampered},
		{name: "different purpose", codec: otherPurpose, raw: raw},
		{name: "different secret", codec: otherSecret, raw: raw},
		{name: "expired", codec: later, raw: raw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]string
			assert.Error(t, tt.codec.Decode(tt.raw, &out))
		})
	}
}

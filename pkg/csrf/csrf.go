// Package csrf issues and checks HMAC tokens bound to a caller chosen value.
// The gateway uses them as the OAuth2 state parameter, bound to the nonce
// kept in the login cookie.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	randomLength = 32

	// MinKeyLength is the shortest HMAC key a Signer accepts.
	MinKeyLength = 32
)

var ErrKeyTooShort = fmt.Errorf("csrf key must be at least %d bytes", MinKeyLength)

type Signer struct {
	key []byte
}

func NewSigner(key []byte) (*Signer, error) {
	if len(key) < MinKeyLength {
		return nil, ErrKeyTooShort
	}

	return &Signer{key: key}, nil
}

// Token returns "<hmac>.<random>" where hmac covers binding and random.
func (s *Signer) Token(binding string) (string, error) {
	buf := make([]byte, randomLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}

	random := hex.EncodeToString(buf)

	return hex.EncodeToString(s.mac(binding, random)) + "." + random, nil
}

// Validate reports whether token was issued by this Signer for binding.
func (s *Signer) Validate(token, binding string) error {
	mac, random, ok := strings.Cut(token, ".")
	if !ok || mac == "" || random == "" {
		return errors.New("malformed token")
	}

	received, err := hex.DecodeString(mac)
	if err != nil {
		return fmt.Errorf("decoding token mac: %w", err)
	}

	if !hmac.Equal(received, s.mac(binding, random)) {
		return errors.New("token mac mismatch")
	}

	return nil
}

func (s *Signer) mac(binding, random string) []byte {
	hash := hmac.New(sha256.New, s.key)
	hash.Write(fmt.Appendf(nil, "%d!%s!%d!%s", len(binding), binding, len(random), random))

	return hash.Sum(nil)
}

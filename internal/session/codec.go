package session

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/crypto/hkdf"
)

const (
	MinSecretLength = 32

	keyLength = 32
)

var ErrSecretTooShort = fmt.Errorf("secret must be at least %d bytes", MinSecretLength)

// Codec seals values into encrypted JWTs (dir + A256GCM). The encryption key is
// derived from the configured secret with HKDF, so one secret can serve several
// codecs with different purposes.
type Codec struct {
	key       []byte
	encrypter jose.Encrypter
	maxAge    time.Duration
	now       func() time.Time
}

type CodecOption func(*Codec)

// WithClock overrides the time source used for the issued-at and expiry claims.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

type sealed struct {
	Data any `json:"dat"`
}

type unsealed struct {
	Data json.RawMessage `json:"dat"`
}

func NewCodec(secret []byte, purpose string, maxAge time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("deriving %s key: %w", purpose, err)
	}

	encrypter, err := jose.NewEncrypter(
		jose.A256GCM,
		jose.Recipient{Algorithm: jose.DIRECT, Key: key},
		(&jose.EncrypterOptions{Compression: jose.DEFLATE}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encrypter: %w", err)
	}

	c := &Codec{
		key:       key,
		encrypter: encrypter,
		maxAge:    maxAge,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

// Encode seals v. The token expires after the codec's max age.
func (c *Codec) Encode(v any) (string, error) {
	now := c.now()
	claims := jwt.Claims{
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(c.maxAge)),
	}

	raw, err := jwt.Encrypted(c.encrypter).Claims(claims).Claims(sealed{Data: v}).Serialize()
	if err != nil {
		return "", fmt.Errorf("serializing token: %w", err)
	}

	return raw, nil
}

// Decode opens a token produced by Encode and unmarshals its payload into v.
func (c *Codec) Decode(raw string, v any) error {
	if raw == "" {
		return errors.New("empty token")
	}

	token, err := jwt.ParseEncrypted(raw, []jose.KeyAlgorithm{jose.DIRECT}, []jose.ContentEncryption{jose.A256GCM})
	if err != nil {
		return fmt.Errorf("parsing token: %w", err)
	}

	var (
		claims  jwt.Claims
		payload unsealed
	)
	if err := token.Claims(c.key, &claims, &payload); err != nil {
		return fmt.Errorf("decrypting token: %w", err)
	}

	if err := claims.ValidateWithLeeway(jwt.Expected{Time: c.now()}, 0); err != nil {
		return fmt.Errorf("validating token: %w", err)
	}

	if err := json.Unmarshal(payload.Data, v); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}

	return nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/config"
)

const (
	DefaultCookieName = "__Host-journal-session"

	cookiePurpose = "journal-gateway session cookie"
	// Browsers drop cookies larger than this.
	maxCookieSize = 4096
)

// CookieStore keeps the session in an encrypted, tamper-evident cookie.
// It performs no network I/O.
type CookieStore struct {
	codec    *Codec
	template config.CookieTemplate
}

func NewCookieStore(ctx context.Context, secret []byte, template config.CookieTemplate, maxAge time.Duration, opts ...CodecOption) (*CookieStore, error) {
	if template.Name == "" {
		template.Name = DefaultCookieName
	}
	if template.Path == "" {
		template.Path = "/"
	}
	if template.MaxAge == 0 {
		template.MaxAge = int(maxAge.Seconds())
	}

	if err := template.ToCookie("").Valid(); err != nil {
		return nil, fmt.Errorf("invalid session cookie template: %w", err)
	}

	if !strings.HasPrefix(template.Name, "__Host-") {
		slogctx.Warn(ctx, "Session cookie name does not start with __Host-; this is not recommended in production environments")
	}
	if !template.Secure {
		slogctx.Warn(ctx, "Session cookie is not marked as Secure; this is not recommended in production environments")
	}
	if !template.HTTPOnly {
		slogctx.Warn(ctx, "Session cookie is not marked as HttpOnly; this is not recommended in production environments")
	}

	codec, err := NewCodec(secret, cookiePurpose, maxAge, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating session codec: %w", err)
	}

	return &CookieStore{codec: codec, template: template}, nil
}

// Get returns the session of the request. A missing, expired or tampered
// cookie yields an empty session.
func (s *CookieStore) Get(r *http.Request) (Session, bool) {
	cookie, err := r.Cookie(s.template.Name)
	if err != nil {
		return Session{}, false
	}

	var sess Session
	if err := s.codec.Decode(cookie.Value, &sess); err != nil {
		slogctx.Debug(r.Context(), "Discarding undecodable session cookie", "error", err)
		return Session{}, false
	}

	return sess, true
}

// Set writes sess to the response.
func (s *CookieStore) Set(ctx context.Context, w http.ResponseWriter, sess Session) error {
	if sess.IsZero() {
		return errors.New("refusing to store an empty session")
	}

	value, err := s.codec.Encode(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	cookie := s.template.ToCookie(value)
	if size := len(cookie.String()); size > maxCookieSize {
		slogctx.Warn(ctx, "Session cookie exceeds the browser size limit", "size", size, "limit", maxCookieSize)
	}

	http.SetCookie(w, cookie)

	return nil
}

// Clear deletes the session cookie.
func (s *CookieStore) Clear(w http.ResponseWriter) {
	http.SetCookie(w, s.template.ToExpiredCookie())
}

// Name returns the cookie name.
func (s *CookieStore) Name() string {
	return s.template.Name
}

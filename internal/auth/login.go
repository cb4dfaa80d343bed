package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openkcm/journal-gateway/internal/config"
	"github.com/openkcm/journal-gateway/internal/serviceerr"
	"github.com/openkcm/journal-gateway/internal/session"
)

const (
	DefaultLoginCookieName = "__Host-journal-login"

	loginCookiePurpose = "journal-gateway login state"
)

// LoginState is what the gateway remembers between sending the browser to
// the identity provider and receiving the callback.
type LoginState struct {
	// Nonce binds the state parameter and the ID token to this login.
	Nonce string `json:"nonce"`
	// Verifier is the PKCE code verifier.
	Verifier string `json:"verifier"`
	ReturnTo string `json:"returnTo,omitempty"`
}

// LoginCookie keeps the LoginState in a short-lived encrypted cookie.
type LoginCookie struct {
	codec    *session.Codec
	template config.CookieTemplate
}

func NewLoginCookie(secret []byte, template config.CookieTemplate, ttl time.Duration, opts ...session.CodecOption) (*LoginCookie, error) {
	if template.Name == "" {
		template.Name = DefaultLoginCookieName
	}
	if template.Path == "" {
		template.Path = "/"
	}
	if template.MaxAge == 0 {
		template.MaxAge = int(ttl.Seconds())
	}
	// The callback is a cross-site top level navigation.
	if template.SameSite == "" || template.SameSite == config.CookieSameSiteStrict {
		template.SameSite = config.CookieSameSiteLax
	}

	if err := template.ToCookie("").Valid(); err != nil {
		return nil, fmt.Errorf("invalid login cookie template: %w", err)
	}

	codec, err := session.NewCodec(secret, loginCookiePurpose, ttl, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating login state codec: %w", err)
	}

	return &LoginCookie{codec: codec, template: template}, nil
}

func (c *LoginCookie) Set(w http.ResponseWriter, state LoginState) error {
	value, err := c.codec.Encode(state)
	if err != nil {
		return fmt.Errorf("encoding login state: %w", err)
	}

	http.SetCookie(w, c.template.ToCookie(value))

	return nil
}

// Get returns the login state of the request. A missing cookie is an invalid
// state; one that cannot be decoded has most likely expired.
func (c *LoginCookie) Get(r *http.Request) (LoginState, error) {
	cookie, err := r.Cookie(c.template.Name)
	if err != nil {
		return LoginState{}, serviceerr.ErrInvalidState.WithDescription("login state is missing")
	}

	var state LoginState
	if err := c.codec.Decode(cookie.Value, &state); err != nil {
		return LoginState{}, errors.Join(serviceerr.ErrStateExpired, err)
	}

	return state, nil
}

func (c *LoginCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.template.ToExpiredCookie())
}

// SafeReturnTo accepts only same-origin absolute paths so the login flow
// cannot be used as an open redirect.
func SafeReturnTo(returnTo, fallback string) string {
	if returnTo == "" ||
		!strings.HasPrefix(returnTo, "/") ||
		strings.HasPrefix(returnTo, "//") ||
		strings.HasPrefix(returnTo, "/\\") ||
		strings.ContainsAny(returnTo, "\r\n") {
		return fallback
	}

	return returnTo
}

package auth_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/journal-gateway/internal/auth"
	"github.com/openkcm/journal-gateway/internal/auth/authtest"
	"github.com/openkcm/journal-gateway/internal/config"
	"github.com/openkcm/journal-gateway/internal/serviceerr"
	"github.com/openkcm/journal-gateway/internal/session"
	"github.com/openkcm/journal-gateway/pkg/csrf"
)

const secret = "0123456789abcdef0123456789abcdef"

func newAuthenticator(t *testing.T, idp *authtest.Provider, cfg config.IdentityProvider, opts ...auth.Option) *auth.Authenticator {
	t.Helper()

	signer, err := csrf.NewSigner([]byte(secret))
	require.NoError(t, err)

	return auth.NewAuthenticator(t.Context(), cfg, authtest.ClientSecret, signer, idp.Client(), opts...)
}

func TestAuthenticator_Begin(t *testing.T) {
	idp := authtest.Start(t)
	a := newAuthenticator(t, idp, idp.Config())

	state, authURL, err := a.Begin("/library")
	require.NoError(t, err)

	assert.NotEmpty(t, state.Nonce)
	assert.NotEmpty(t, state.Verifier)
	assert.Equal(t, "/library", state.ReturnTo)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, idp.URL+"/oauth/v2/authorize", u.Scheme+"://"+u.Host+u.Path)

	q := u.Query()
	assert.Equal(t, authtest.ClientID, q.Get("client_id"))
	assert.Equal(t, authtest.RedirectURL, q.Get("redirect_uri"))
	assert.Equal(t, "openid email profile offline_access", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEqual(t, state.Verifier, q.Get("code_challenge"))
	assert.Equal(t, state.Nonce, q.Get("nonce"))
	assert.NotEmpty(t, q.Get("state"))

	other, _, err := a.Begin("")
	require.NoError(t, err)
	assert.NotEqual(t, state.Nonce, other.Nonce)
}

func TestAuthenticator_Complete(t *testing.T) {
	idp := authtest.Start(t)
	a := newAuthenticator(t, idp, idp.Config())
	user := authtest.User{Subject: "user-1", Name: "Ada Lovelace", Email: "ada@example.org"}

	t.Run("successful login", func(t *testing.T) {
		state, authURL, err := a.Begin("/")
		require.NoError(t, err)
		code, stateParam := idp.Authorize(t, authURL, user)

		before := time.Now()
		s, err := a.Complete(t.Context(), state, stateParam, code)
		require.NoError(t, err)

		assert.Equal(t, "user-1", s.User.Subject)
		assert.Equal(t, "Ada Lovelace", s.User.Name)
		assert.Equal(t, "ada@example.org", s.User.Email)
		assert.NotEmpty(t, s.Secure.AccessToken)
		assert.NotEmpty(t, s.Secure.RefreshToken)
		assert.NotEmpty(t, s.Secure.IDToken)
		assert.WithinDuration(t, before.Add(time.Hour), s.Secure.Expiry(), time.Minute)
		assert.True(t, idp.IsActive(s.Secure.AccessToken))
	})

	tests := []struct {
		name    string
		tamper  func(state *auth.LoginState, stateParam, code *string)
		wantErr *serviceerr.Error
	}{
		{
			name:    "state parameter from another login",
			tamper:  func(state *auth.LoginState, _, _ *string) { state.Nonce = "other-nonce" },
			wantErr: serviceerr.ErrInvalidState,
		},
		{
			name:    "forged state parameter",
			tamper:  func(_ *auth.LoginState, stateParam, _ *string) { *stateParam = "deadbeef.cafe" },
			wantErr: serviceerr.ErrInvalidState,
		},
		{
			name:    "missing code",
			tamper:  func(_ *auth.LoginState, _, code *string) { *code = "" },
			wantErr: serviceerr.ErrInvalidRequest,
		},
		{
			name:    "unknown code",
			tamper:  func(_ *auth.LoginState, _, code *string) { *code = "code-unknown" },
			wantErr: serviceerr.ErrInvalidGrant,
		},
		{
			name:    "wrong code verifier",
			tamper:  func(state *auth.LoginState, _, _ *string) { state.Verifier = strings.Repeat("a", 43) },
			wantErr: serviceerr.ErrInvalidGrant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, authURL, err := a.Begin("/")
			require.NoError(t, err)
			code, stateParam := idp.Authorize(t, authURL, user)

			tt.tamper(&state, &stateParam, &code)

			s, err := a.Complete(t.Context(), state, stateParam, code)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, s.IsZero())
		})
	}
}

func TestAuthenticator_CompleteRejectsExpiredIDToken(t *testing.T) {
	idp := authtest.Start(t)
	a := newAuthenticator(t, idp, idp.Config(), auth.WithClock(func() time.Time {
		return time.Now().Add(2 * time.Hour)
	}))

	state, authURL, err := a.Begin("/")
	require.NoError(t, err)
	code, stateParam := idp.Authorize(t, authURL, authtest.User{Subject: "user-1"})

	_, err = a.Complete(t.Context(), state, stateParam, code)
	assert.ErrorIs(t, err, serviceerr.ErrAccessDenied)
}

func TestAuthenticator_EndSessionURL(t *testing.T) {
	idp := authtest.Start(t)

	a := newAuthenticator(t, idp, idp.Config())
	assert.Empty(t, a.EndSessionURL("id-token"))

	cfg := idp.Config()
	cfg.PostLogoutRedirectURL = "http://gateway.test/"
	a = newAuthenticator(t, idp, cfg)

	u, err := url.Parse(a.EndSessionURL("id-token"))
	require.NoError(t, err)
	assert.Equal(t, "/oidc/v1/end_session", u.Path)
	assert.Equal(t, "id-token", u.Query().Get("id_token_hint"))
	assert.Equal(t, "http://gateway.test/", u.Query().Get("post_logout_redirect_uri"))
	assert.Equal(t, authtest.ClientID, u.Query().Get("client_id"))
}

func TestLoginCookie(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	lc, err := auth.NewLoginCookie([]byte(secret), config.CookieTemplate{Secure: true, HTTPOnly: true}, 10*time.Minute, session.WithClock(clock))
	require.NoError(t, err)

	want := auth.LoginState{Nonce: "n", Verifier: "v", ReturnTo: "/x"}

	rec := httptest.NewRecorder()
	require.NoError(t, lc.Set(rec, want))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.DefaultLoginCookieName, cookies[0].Name)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, 600, cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/callback", nil)
	req.AddCookie(cookies[0])

	got, err := lc.Get(req)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	t.Run("missing cookie", func(t *testing.T) {
		_, err := lc.Get(httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, err, serviceerr.ErrInvalidState)
	})

	t.Run("expired cookie", func(t *testing.T) {
		later, err := auth.NewLoginCookie([]byte(secret), config.CookieTemplate{}, 10*time.Minute, session.WithClock(func() time.Time {
			return now.Add(11 * time.Minute)
		}))
		require.NoError(t, err)

		_, err = later.Get(req)
		assert.ErrorIs(t, err, serviceerr.ErrStateExpired)
	})

	t.Run("clear", func(t *testing.T) {
		rec := httptest.NewRecorder()
		lc.Clear(rec)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}

func TestSafeReturnTo(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "/"},
		{in: "/library/3", want: "/library/3"},
		{in: "https://evil.example", want: "/"},
		{in: "//evil.example", want: "/"},
		{in: "/\\evil.example", want: "/"},
		{in: "relative", want: "/"},
		{in: "/ok\r\nSet-Cookie: x", want: "/"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.SafeReturnTo(tt.in, "/"))
		})
	}
}

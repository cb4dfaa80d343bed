package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/openkcm/journal-gateway/internal/auth"
	"github.com/openkcm/journal-gateway/internal/auth/authtest"
	"github.com/openkcm/journal-gateway/internal/backend"
	"github.com/openkcm/journal-gateway/internal/backend/backendtest"
	"github.com/openkcm/journal-gateway/internal/config"
	"github.com/openkcm/journal-gateway/internal/session"
	"github.com/openkcm/journal-gateway/internal/token"
	"github.com/openkcm/journal-gateway/pkg/csrf"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var ada = authtest.User{Subject: "user-1", Name: "Ada Lovelace", Email: "ada@example.org"}

type gateway struct {
	handler  http.Handler
	idp      *authtest.Provider
	backend  *backendtest.Backend
	sessions *session.CookieStore
}

func newGateway(t *testing.T) *gateway {
	t.Helper()

	idp := authtest.Start(t)
	fake := backendtest.New()

	cfg := testConfig()
	cfg.IdentityProvider = idp.Config()
	cfg.HTTP.PostLoginRedirect = "/"

	template := config.CookieTemplate{Secure: true, HTTPOnly: true, SameSite: config.CookieSameSiteLax}
	sessions, err := session.NewCookieStore(t.Context(), []byte(testSecret), template, time.Hour)
	require.NoError(t, err)

	loginCookie, err := auth.NewLoginCookie([]byte(testSecret), template, 10*time.Minute)
	require.NoError(t, err)

	introspector, err := token.NewZitadelIntrospector(t.Context(), cfg.IdentityProvider, authtest.ClientSecret, idp.Client())
	require.NoError(t, err)
	refresher := token.NewOAuth2Refresher(cfg.IdentityProvider, authtest.ClientSecret, idp.Client())

	signer, err := csrf.NewSigner([]byte(testSecret))
	require.NoError(t, err)

	handler, err := NewHandler(t.Context(), cfg, Dependencies{
		Sessions:      sessions,
		Tokens:        token.NewManager(introspector, refresher),
		Services:      backend.NewServices(backendtest.Start(t, fake)),
		Authenticator: auth.NewAuthenticator(t.Context(), cfg.IdentityProvider, authtest.ClientSecret, signer, idp.Client()),
		LoginCookie:   loginCookie,
	})
	require.NoError(t, err)

	return &gateway{handler: handler, idp: idp, backend: fake, sessions: sessions}
}

// do serves one request. It must not use require so it can run in goroutines.
func (g *gateway) do(method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}

	rec := httptest.NewRecorder()
	g.handler.ServeHTTP(rec, req)

	return rec
}

func (g *gateway) cookie(t *testing.T, s session.Session) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	require.NoError(t, g.sessions.Set(t.Context(), rec, s))

	return responseCookie(rec, g.sessions.Name())
}

// storedSession decodes the session cookie a response set.
func (g *gateway) storedSession(t *testing.T, rec *httptest.ResponseRecorder) (session.Session, bool) {
	t.Helper()

	c := responseCookie(rec, g.sessions.Name())
	if c == nil || c.MaxAge < 0 {
		return session.Session{}, false
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)

	return g.sessions.Get(req)
}

// loggedIn creates a session with active tokens that the backend accepts.
func (g *gateway) loggedIn(t *testing.T, user authtest.User) *http.Cookie {
	t.Helper()

	access, refresh := g.idp.IssueTokens(user)
	g.backend.AcceptToken(access, user.Subject)

	return g.cookie(t, session.Session{
		User: session.User{Subject: user.Subject, Name: user.Name, Email: user.Email},
		Secure: session.Credentials{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    session.ExpiresAt(time.Now(), time.Hour),
		},
		LoggedInAt: time.Now(),
	})
}

// expiredSession creates a session whose access token expired a second ago.
func (g *gateway) expiredSession(t *testing.T, user authtest.User, withRefreshToken bool) (*http.Cookie, session.Session) {
	t.Helper()

	access, refresh := g.idp.IssueTokens(user)
	g.idp.Expire(access)
	if !withRefreshToken {
		refresh = ""
	}

	s := session.Session{
		User: session.User{Subject: user.Subject, Name: user.Name},
		Secure: session.Credentials{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresAt:    time.Now().Add(-time.Second).UnixMilli(),
		},
		LoggedInAt: time.Now().Add(-time.Hour),
	}

	return g.cookie(t, s), s
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}

	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())

	return v
}

func TestTokenGuard_RefreshesExpiredAccessToken(t *testing.T) {
	g := newGateway(t)
	g.backend.AddArticle(backend.Article{DOI: "10.1/a", Title: "Attention"})
	cookie, stale := g.expiredSession(t, ada, true)

	rec := g.do(http.MethodGet, "/api/articles", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	fresh, found := g.storedSession(t, rec)
	require.True(t, found, "refreshed session is written back")
	assert.NotEqual(t, stale.Secure.AccessToken, fresh.Secure.AccessToken)
	assert.NotEqual(t, stale.Secure.RefreshToken, fresh.Secure.RefreshToken)
	assert.Greater(t, fresh.Secure.ExpiresAt, stale.Secure.ExpiresAt)
	assert.True(t, g.idp.IsActive(fresh.Secure.AccessToken))
	assert.Empty(t, cmp.Diff(stale.User, fresh.User))
	assert.True(t, stale.LoggedInAt.Equal(fresh.LoggedInAt))

	calls := g.backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Bearer "+fresh.Secure.AccessToken, calls[0].Authorization, "backend sees the fresh token, not the stale one")
	assert.EqualValues(t, 1, g.idp.Refreshes())
}

func TestTokenGuard_ConcurrentRequestsShareOneRefresh(t *testing.T) {
	g := newGateway(t)
	g.idp.SetRefreshDelay(200 * time.Millisecond)
	cookie, stale := g.expiredSession(t, ada, true)

	recs := make([]*httptest.ResponseRecorder, 2)

	var wg sync.WaitGroup
	for i := range recs {
		wg.Go(func() {
			recs[i] = g.do(http.MethodGet, "/api/articles", "", cookie)
		})
	}
	wg.Wait()

	var pairs []session.Credentials
	for _, rec := range recs {
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		s, found := g.storedSession(t, rec)
		require.True(t, found)
		pairs = append(pairs, s.Secure)
	}

	assert.EqualValues(t, 1, g.idp.Refreshes(), "the refresh token is exchanged once")
	assert.Equal(t, pairs[0].AccessToken, pairs[1].AccessToken)
	assert.Equal(t, pairs[0].RefreshToken, pairs[1].RefreshToken)
	assert.NotEqual(t, stale.Secure.RefreshToken, pairs[0].RefreshToken)

	// The stored pair is consistent: once its access token expires, its
	// refresh token still works.
	g.idp.SetRefreshDelay(0)
	g.idp.Expire(pairs[0].AccessToken)

	next, _ := g.storedSession(t, recs[0])
	rec := g.do(http.MethodGet, "/api/articles", "", g.cookie(t, next))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, g.idp.Refreshes())
}

func TestTokenGuard(t *testing.T) {
	tests := []struct {
		name            string
		cookie          func(t *testing.T, g *gateway) *http.Cookie
		target          string
		wantStatus      int
		wantCleared     bool
		wantBackendCall bool
		wantIntrospect  bool
		wantRefreshes   int32
	}{
		{
			name:            "anonymous request to a public route",
			cookie:          func(*testing.T, *gateway) *http.Cookie { return nil },
			target:          "/api/articles",
			wantStatus:      http.StatusOK,
			wantBackendCall: true,
		},
		{
			name:       "anonymous request to a protected route",
			cookie:     func(*testing.T, *gateway) *http.Cookie { return nil },
			target:     "/api/profile/me",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "undecodable cookie is anonymous",
			cookie: func(*testing.T, *gateway) *http.Cookie {
				return &http.Cookie{Name: session.DefaultCookieName, Value: "garbage"}
			},
			target:          "/api/articles",
			wantStatus:      http.StatusOK,
			wantBackendCall: true,
		},
		{
			name:            "active access token",
			cookie:          func(t *testing.T, g *gateway) *http.Cookie { return g.loggedIn(t, ada) },
			target:          "/api/articles",
			wantStatus:      http.StatusOK,
			wantBackendCall: true,
			wantIntrospect:  true,
		},
		{
			name: "expired access token without refresh token",
			cookie: func(t *testing.T, g *gateway) *http.Cookie {
				c, _ := g.expiredSession(t, ada, false)
				return c
			},
			target:         "/api/articles",
			wantStatus:     http.StatusUnauthorized,
			wantCleared:    true,
			wantIntrospect: true,
		},
		{
			name: "revoked refresh token",
			cookie: func(t *testing.T, g *gateway) *http.Cookie {
				c, s := g.expiredSession(t, ada, true)
				g.idp.Revoke(s.Secure.RefreshToken)
				return c
			},
			target:         "/api/articles",
			wantStatus:     http.StatusUnauthorized,
			wantCleared:    true,
			wantIntrospect: true,
			wantRefreshes:  1,
		},
		{
			name: "login flow routes are not guarded",
			cookie: func(t *testing.T, g *gateway) *http.Cookie {
				c, _ := g.expiredSession(t, ada, false)
				return c
			},
			target:     "/api/auth/session",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t)

			rec := g.do(http.MethodGet, tt.target, "", tt.cookie(t, g))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

			if tt.wantStatus == http.StatusUnauthorized {
				body := decode[ErrorModel](t, rec)
				assert.Equal(t, "unauthorized_client", body.Error)
			}

			set := responseCookie(rec, g.sessions.Name())
			if tt.wantCleared {
				require.NotNil(t, set)
				assert.Equal(t, -1, set.MaxAge)
			} else {
				assert.Nil(t, set, "session cookie is left alone")
			}

			assert.Equal(t, tt.wantBackendCall, len(g.backend.Calls()) > 0)
			assert.Equal(t, tt.wantIntrospect, g.idp.Introspections() > 0)
			assert.Equal(t, tt.wantRefreshes, g.idp.Refreshes())
		})
	}
}

func TestLoginFlow(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodGet, "/api/auth/login?returnTo=/library", "")
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())

	authURL := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(authURL, g.idp.URL+"/oauth/v2/authorize?"))

	loginCookie := responseCookie(rec, auth.DefaultLoginCookieName)
	require.NotNil(t, loginCookie)

	code, state := g.idp.Authorize(t, authURL, ada)

	rec = g.do(http.MethodGet, "/api/auth/callback?code="+code+"&state="+state, "", loginCookie)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	assert.Equal(t, "/library", rec.Header().Get("Location"))

	cleared := responseCookie(rec, auth.DefaultLoginCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	s, found := g.storedSession(t, rec)
	require.True(t, found)
	assert.Equal(t, ada.Subject, s.User.Subject)
	assert.True(t, g.idp.IsActive(s.Secure.AccessToken))

	rec = g.do(http.MethodGet, "/api/auth/session", "", responseCookie(rec, g.sessions.Name()))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[sessionResponse](t, rec)
	assert.True(t, body.LoggedIn)
	require.NotNil(t, body.User)
	assert.Equal(t, "Ada Lovelace", body.User.Name)
	assert.NotContains(t, rec.Body.String(), s.Secure.AccessToken, "tokens never leave the server")

	t.Run("replayed callback without login state", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/api/auth/callback?code="+code+"&state="+state, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_state", decode[ErrorModel](t, rec).Error)
	})

	t.Run("open redirect is refused", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/api/auth/login?returnTo=https://evil.example", "")
		require.Equal(t, http.StatusFound, rec.Code)

		lc := responseCookie(rec, auth.DefaultLoginCookieName)
		code, state := g.idp.Authorize(t, rec.Header().Get("Location"), ada)

		rec = g.do(http.MethodGet, "/api/auth/callback?code="+code+"&state="+state, "", lc)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})

	t.Run("identity provider error", func(t *testing.T) {
		rec := g.do(http.MethodGet, "/api/auth/callback?error=access_denied", "", loginCookie)
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
		assert.Nil(t, responseCookie(rec, g.sessions.Name()))
	})
}

func TestLogout(t *testing.T) {
	g := newGateway(t)

	rec := g.do(http.MethodPost, "/api/auth/logout", "", g.loggedIn(t, ada))
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := responseCookie(rec, g.sessions.Name())
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	body := decode[logoutResponse](t, rec)
	assert.True(t, body.Success)
	assert.Empty(t, body.LogoutURL)

	rec = g.do(http.MethodGet, "/api/auth/session", "")
	assert.False(t, decode[sessionResponse](t, rec).LoggedIn)
}

func TestArticleRoutes(t *testing.T) {
	g := newGateway(t)
	cookie := g.loggedIn(t, ada)
	id := g.backend.AddArticle(backend.Article{DOI: "10.1000/xyz.123", Title: "Attention"})
	g.backend.Fail(backend.ArticlesService+"/"+backend.MethodDeleteArticle, errors.New("connection reset by peer"))

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		wantStatus int
		wantError  string
		wantBody   string
	}{
		{name: "get article", method: http.MethodGet, target: "/api/articles/1", wantStatus: http.StatusOK, wantBody: `"title":"Attention"`},
		{name: "get article by DOI with slash", method: http.MethodGet, target: "/api/articles/doi/10.1000/XYZ.123", wantStatus: http.StatusOK, wantBody: `"doi":"10.1000/xyz.123"`},
		{name: "missing article", method: http.MethodGet, target: "/api/articles/42", wantStatus: http.StatusNotFound, wantError: "not_found", wantBody: "article not found with ID: 42"},
		{name: "invalid id", method: http.MethodGet, target: "/api/articles/abc", wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "non positive id", method: http.MethodGet, target: "/api/articles/0", wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "create without title", method: http.MethodPost, target: "/api/articles", body: `{"doi":"10.1/x"}`, wantStatus: http.StatusBadRequest, wantError: "invalid_request", wantBody: "DOI and title are required"},
		{name: "create with malformed body", method: http.MethodPost, target: "/api/articles", body: `{"doi":`, wantStatus: http.StatusBadRequest, wantError: "invalid_request"},
		{name: "create", method: http.MethodPost, target: "/api/articles", body: `{"doi":"10.1/x","title":"Paper","authors":["Ada"," "]}`, wantStatus: http.StatusOK, wantBody: `"success":true`},
		{name: "update", method: http.MethodPut, target: "/api/articles/1", body: `{"title":"Attention Is All You Need"}`, wantStatus: http.StatusOK, wantBody: `"success":true`},
		{name: "backend failure hides details", method: http.MethodDelete, target: "/api/articles/1", wantStatus: http.StatusInternalServerError, wantError: "server_error", wantBody: "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := g.do(tt.method, tt.target, tt.body, cookie)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, decode[ErrorModel](t, rec).Error)
			}
			if tt.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			}
			assert.NotContains(t, rec.Body.String(), "connection reset")
		})
	}

	rec := g.do(http.MethodGet, "/api/articles/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decode[backend.Article](t, rec).ID)
	assert.Equal(t, "Attention Is All You Need", decode[backend.Article](t, rec).Title)

	t.Run("writes need a session", func(t *testing.T) {
		rec := g.do(http.MethodPost, "/api/articles", `{"doi":"10.1/y","title":"Other"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestBackendRejectsCredentials(t *testing.T) {
	tests := []struct {
		name        string
		loggedIn    bool
		wantCleared bool
	}{
		{name: "logged in session is cleared", loggedIn: true, wantCleared: true},
		{name: "anonymous request keeps cookies", loggedIn: false, wantCleared: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGateway(t)
			g.backend.Fail(backend.ArticlesService+"/"+backend.MethodListArticles, status.Error(codes.Unauthenticated, "token revoked"))

			var cookie *http.Cookie
			if tt.loggedIn {
				cookie = g.loggedIn(t, ada)
			}

			rec := g.do(http.MethodGet, "/api/articles", "", cookie)
			require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
			assert.Equal(t, "unauthorized_client", decode[ErrorModel](t, rec).Error)

			set := responseCookie(rec, g.sessions.Name())
			if tt.wantCleared {
				require.NotNil(t, set)
				assert.Equal(t, -1, set.MaxAge)
			} else {
				assert.Nil(t, set)
			}
		})
	}
}

func TestProfileAndLibraryRoutes(t *testing.T) {
	g := newGateway(t)
	cookie := g.loggedIn(t, ada)
	articleID := g.backend.AddArticle(backend.Article{DOI: "10.1/a", Title: "Attention"})

	rec := g.do(http.MethodGet, "/api/setup/status", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, setupStatusResponse{NeedsSetup: true}, decode[setupStatusResponse](t, rec))

	rec = g.do(http.MethodPost, "/api/libraries", `{"name":"Reading"}`, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code, "a library needs a profile")
	assert.Contains(t, rec.Body.String(), "profile")

	rec = g.do(http.MethodPost, "/api/profile", `{"bio":"Mathematician"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[createdProfileResponse](t, rec)
	assert.Equal(t, "Ada Lovelace", created.Name, "name falls back to the session user")
	assert.True(t, created.SetupComplete)

	libs := g.backend.LibrariesOf(created.ID)
	require.Len(t, libs, 1)
	assert.Equal(t, "My Reading List", libs[0].Name)

	rec = g.do(http.MethodGet, "/api/setup/status", "", cookie)
	status := decode[setupStatusResponse](t, rec)
	assert.False(t, status.NeedsSetup)
	assert.True(t, status.HasProfile)

	rec = g.do(http.MethodGet, "/api/profile/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[backend.Profile](t, rec).ID)

	rec = g.do(http.MethodPost, "/api/libraries", `{"description":"no name"}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(http.MethodPost, "/api/libraries", `{"name":"Transformers","isPublic":true}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lib := decode[createdLibraryResponse](t, rec)
	assert.True(t, lib.IsPublic)

	rec = g.do(http.MethodPost, "/api/libraries/"+itoa(lib.ID)+"/articles", `{"articleId":`+itoa(articleID)+`}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = g.do(http.MethodPost, "/api/libraries/"+itoa(libs[0].ID)+"/articles", `{"articleId":`+itoa(articleID)+`,"readingStatus":"completed"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = g.do(http.MethodPost, "/api/libraries/"+itoa(lib.ID)+"/articles", `{"readingStatus":"completed"}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "article id is required")

	rec = g.do(http.MethodPost, "/api/libraries/"+itoa(lib.ID)+"/articles", `{"articleId":1,"readingStatus":"abandoned"}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(http.MethodGet, "/api/libraries/"+itoa(lib.ID), "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[backend.Library](t, rec)
	require.Len(t, got.Articles, 1)
	assert.Equal(t, backend.ReadingStatusToRead, got.Articles[0].ReadingStatus, "reading status defaults to TO_READ")

	rec = g.do(http.MethodGet, "/api/libraries", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[librariesResponse](t, rec)
	require.NotNil(t, all.DefaultLibrary)
	assert.Equal(t, "My Reading List", all.DefaultLibrary.Name)
	assert.Equal(t, libraryStats{Total: 2, Articles: 2, Completed: 1}, all.Stats)

	rec = g.do(http.MethodGet, "/api/libraries/9999", "", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = g.do(http.MethodPut, "/api/libraries/"+itoa(lib.ID), `{"isPublic":false}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(http.MethodDelete, "/api/libraries/"+itoa(lib.ID), "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[successResponse](t, rec).Success)

	rec = g.do(http.MethodDelete, "/api/libraries/"+itoa(lib.ID), "", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = g.do(http.MethodPut, "/api/profile/"+itoa(created.ID), `{"institution":"Analytical Engines"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = g.do(http.MethodGet, "/api/profile/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[backend.Profile](t, rec)
	require.NotNil(t, profile.Institution)
	assert.Equal(t, "Analytical Engines", *profile.Institution)
}

func TestAuthorRoutes(t *testing.T) {
	g := newGateway(t)
	id := g.backend.AddAuthor(backend.Author{Name: "Ada Lovelace"})

	rec := g.do(http.MethodGet, "/api/authors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[backend.ListAuthorsResponse](t, rec).Authors, 1)

	rec = g.do(http.MethodGet, "/api/authors/"+itoa(id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada Lovelace", decode[backend.Author](t, rec).Name)

	rec = g.do(http.MethodGet, "/api/authors/"+itoa(id+1), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartHTTPServer_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())

	cfg := testConfig()
	cfg.HTTP = config.HTTPServer{
		Address:         "localhost:0",
		ShutdownTimeout: time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- StartHTTPServer(ctx, cfg, Dependencies{})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down within timeout")
	}
}

func TestCreateHTTPServer(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP = config.HTTPServer{Address: "unix:///tmp/journal-gateway.sock", ReadHeaderTimeout: time.Second}

	server, err := createHTTPServer(t.Context(), cfg, Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "unix:///tmp/journal-gateway.sock", server.Addr)
	assert.Equal(t, time.Second, server.ReadHeaderTimeout)
	assert.NotNil(t, server.Handler)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

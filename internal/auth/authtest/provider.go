// Package authtest runs an in-process OAuth2/OIDC identity provider that
// serves the Zitadel endpoints the gateway talks to: authorization code and
// refresh token grants, token introspection and the signing keys.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/journal-gateway/internal/config"
)

const (
	ClientID     = "journal-gateway"
	ClientSecret = "journal-gateway-secret"
	RedirectURL  = "http://gateway.test/api/auth/callback"

	keyID = "test-key"
)

// User is the identity the provider signs into ID tokens.
type User struct {
	Subject string
	Name    string
	Email   string
}

type authorization struct {
	challenge string
	nonce     string
	user      User
}

type Provider struct {
	*httptest.Server

	key *rsa.PrivateKey

	mu             sync.Mutex
	codes          map[string]authorization
	active         map[string]string
	refreshable    map[string]User
	counter        int
	rotate         bool
	refreshDelay   time.Duration
	accessTokenTTL time.Duration

	introspections atomic.Int32
	refreshes      atomic.Int32
}

func Start(t *testing.T) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &Provider{
		key:            key,
		codes:          map[string]authorization{},
		active:         map[string]string{},
		refreshable:    map[string]User{},
		rotate:         true,
		accessTokenTTL: time.Hour,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth/v2/keys", p.serveKeys)
	mux.HandleFunc("POST /oauth/v2/token", p.serveToken)
	mux.HandleFunc("POST /oauth/v2/introspect", p.serveIntrospection)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)

	return p
}

// Config points the gateway at this provider.
func (p *Provider) Config() config.IdentityProvider {
	return config.IdentityProvider{
		Issuer:               p.URL,
		ClientID:             ClientID,
		RedirectURL:          RedirectURL,
		IntrospectionTimeout: 2 * time.Second,
		RefreshTimeout:       2 * time.Second,
	}
}

// SetRotate controls whether refresh grants return a new refresh token.
func (p *Provider) SetRotate(rotate bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rotate = rotate
}

// SetRefreshDelay slows down refresh grants.
func (p *Provider) SetRefreshDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refreshDelay = d
}

// Authorize plays the user agent: it reads the authorization request URL
// produced by the gateway, signs user in and returns the code and state the
// provider would redirect back with.
func (p *Provider) Authorize(t *testing.T, authURL string, user User) (code, state string) {
	t.Helper()

	u, err := url.Parse(authURL)
	require.NoError(t, err)

	q := u.Query()
	require.Equal(t, ClientID, q.Get("client_id"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "S256", q.Get("code_challenge_method"))

	p.mu.Lock()
	defer p.mu.Unlock()

	code = p.nextLocked("code")
	p.codes[code] = authorization{
		challenge: q.Get("code_challenge"),
		nonce:     q.Get("nonce"),
		user:      user,
	}

	return code, q.Get("state")
}

// IssueTokens registers an active access token and a refresh token for user
// as if the user had logged in before.
func (p *Provider) IssueTokens(user User) (accessToken, refreshToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	accessToken = p.nextLocked("access")
	refreshToken = p.nextLocked("refresh")
	p.active[accessToken] = user.Subject
	p.refreshable[refreshToken] = user

	return accessToken, refreshToken
}

// Expire makes introspection report accessToken as inactive.
func (p *Provider) Expire(accessToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.active, accessToken)
}

// Revoke invalidates refreshToken.
func (p *Provider) Revoke(refreshToken string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.refreshable, refreshToken)
}

func (p *Provider) IsActive(accessToken string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, ok := p.active[accessToken]

	return ok
}

func (p *Provider) Introspections() int32 { return p.introspections.Load() }
func (p *Provider) Refreshes() int32      { return p.refreshes.Load() }

func (p *Provider) nextLocked(kind string) string {
	p.counter++
	return fmt.Sprintf("%s-%d", kind, p.counter)
}

func (p *Provider) serveKeys(w http.ResponseWriter, _ *http.Request) {
	keys := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &p.key.PublicKey,
		KeyID:     keyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}}

	writeJSON(w, http.StatusOK, keys)
}

func (p *Provider) serveIntrospection(w http.ResponseWriter, r *http.Request) {
	p.introspections.Add(1)

	id, secret, ok := r.BasicAuth()
	if !ok || id != ClientID || secret != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	_ = r.ParseForm()

	p.mu.Lock()
	subject, active := p.active[r.PostForm.Get("token")]
	ttl := p.accessTokenTTL
	p.mu.Unlock()

	resp := map[string]any{"active": active}
	if active {
		resp["sub"] = subject
		resp["client_id"] = ClientID
		resp["exp"] = time.Now().Add(ttl).Unix()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (p *Provider) serveToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.exchangeCode(w, r)
	case "refresh_token":
		p.refresh(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *Provider) exchangeCode(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	auth, ok := p.codes[r.PostForm.Get("code")]
	delete(p.codes, r.PostForm.Get("code"))
	p.mu.Unlock()

	if !ok || r.PostForm.Get("redirect_uri") != RedirectURL {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != auth.challenge {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "code verifier mismatch"})
		return
	}

	idToken, err := p.signIDToken(auth.user, auth.nonce)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
		return
	}

	access, refresh := p.IssueTokens(auth.user)
	writeJSON(w, http.StatusOK, p.tokenResponse(access, refresh, idToken))
}

func (p *Provider) refresh(w http.ResponseWriter, r *http.Request) {
	p.refreshes.Add(1)

	p.mu.Lock()
	delay := p.refreshDelay
	p.mu.Unlock()
	time.Sleep(delay)

	old := r.PostForm.Get("refresh_token")

	p.mu.Lock()
	defer p.mu.Unlock()

	user, ok := p.refreshable[old]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "refresh token is invalid"})
		return
	}

	access := p.nextLocked("access")
	p.active[access] = user.Subject

	refresh := ""
	if p.rotate {
		refresh = p.nextLocked("refresh")
		delete(p.refreshable, old)
		p.refreshable[refresh] = user
	}

	writeJSON(w, http.StatusOK, p.tokenResponse(access, refresh, ""))
}

func (p *Provider) tokenResponse(access, refresh, idToken string) map[string]any {
	resp := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   int(p.accessTokenTTL.Seconds()),
	}
	if refresh != "" {
		resp["refresh_token"] = refresh
	}
	if idToken != "" {
		resp["id_token"] = idToken
	}

	return resp
}

func (p *Provider) signIDToken(user User, nonce string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jose.JSONWebKey{Key: p.key, KeyID: keyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}

	now := time.Now()

	return jwt.Signed(signer).
		Claims(jwt.Claims{
			Issuer:   p.URL,
			Subject:  user.Subject,
			Audience: jwt.Audience{ClientID},
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(time.Hour)),
		}).
		Claims(map[string]any{
			"nonce": nonce,
			"name":  user.Name,
			"email": user.Email,
		}).
		Serialize()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package auth implements the OAuth2 authorization code flow with PKCE
// against the identity provider and turns its result into a session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/config"
	"github.com/openkcm/journal-gateway/internal/serviceerr"
	"github.com/openkcm/journal-gateway/internal/session"
	"github.com/openkcm/journal-gateway/pkg/csrf"
)

// DefaultScopes include offline_access so the provider issues a refresh token.
var DefaultScopes = []string{oidc.ScopeOpenID, "email", "profile", oidc.ScopeOfflineAccess}

type Authenticator struct {
	oauth2     *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	signer     *csrf.Signer
	httpClient *http.Client
	now        func() time.Time

	clientID              string
	endSessionURL         string
	postLogoutRedirectURL string
}

type Option func(*Authenticator)

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAuthenticator wires the flow to the provider's endpoints. Signing keys
// are fetched lazily from the JWKS endpoint with ctx, which must outlive the
// authenticator.
func NewAuthenticator(ctx context.Context, cfg config.IdentityProvider, clientSecret string, signer *csrf.Signer, httpClient *http.Client, opts ...Option) *Authenticator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	a := &Authenticator{
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: clientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationURL(),
				TokenURL:  cfg.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		signer:                signer,
		httpClient:            httpClient,
		now:                   time.Now,
		clientID:              cfg.ClientID,
		endSessionURL:         cfg.EndSessionURL(),
		postLogoutRedirectURL: cfg.PostLogoutRedirectURL,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	keySet := oidc.NewRemoteKeySet(oidc.ClientContext(ctx, httpClient), cfg.JWKSURL())
	a.verifier = oidc.NewVerifier(cfg.IssuerURL(), keySet, &oidc.Config{
		ClientID: cfg.ClientID,
		Now:      a.now,
	})

	return a
}

// Begin starts a login. The returned state must be kept by the caller until
// the callback; the URL is where the browser is sent.
func (a *Authenticator) Begin(returnTo string) (LoginState, string, error) {
	state := LoginState{
		Nonce:    oauth2.GenerateVerifier(),
		Verifier: oauth2.GenerateVerifier(),
		ReturnTo: returnTo,
	}

	stateParam, err := a.signer.Token(state.Nonce)
	if err != nil {
		return LoginState{}, "", fmt.Errorf("creating state parameter: %w", err)
	}

	authURL := a.oauth2.AuthCodeURL(stateParam,
		oauth2.S256ChallengeOption(state.Verifier),
		oidc.Nonce(state.Nonce),
	)

	return state, authURL, nil
}

type userClaims struct {
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
}

// Complete finishes a login started with Begin and returns the new session.
func (a *Authenticator) Complete(ctx context.Context, state LoginState, stateParam, code string) (session.Session, error) {
	if err := a.signer.Validate(stateParam, state.Nonce); err != nil {
		return session.Session{}, errors.Join(serviceerr.ErrInvalidState, err)
	}

	if code == "" {
		return session.Session{}, serviceerr.ErrInvalidRequest.WithDescription("missing authorization code")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	issuedAt := a.now()

	tok, err := a.oauth2.Exchange(ctx, code, oauth2.VerifierOption(state.Verifier))
	if err != nil {
		return session.Session{}, errors.Join(serviceerr.ErrInvalidGrant, fmt.Errorf("exchanging authorization code: %w", err))
	}

	slogctx.Debug(ctx, "Exchanged the authorization code for tokens")

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return session.Session{}, errors.Join(serviceerr.ErrInvalidGrant, errors.New("token response carries no id_token"))
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return session.Session{}, errors.Join(serviceerr.ErrAccessDenied, fmt.Errorf("verifying id token: %w", err))
	}

	if idToken.Nonce != state.Nonce {
		return session.Session{}, serviceerr.ErrInvalidState.WithDescription("id token nonce mismatch")
	}

	var claims userClaims
	if err := idToken.Claims(&claims); err != nil {
		return session.Session{}, errors.Join(serviceerr.ErrAccessDenied, fmt.Errorf("reading id token claims: %w", err))
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 && !tok.Expiry.IsZero() {
		expiresIn = tok.Expiry.Sub(issuedAt)
	}

	return session.Session{
		User: session.User{
			Subject:           idToken.Subject,
			Name:              claims.Name,
			GivenName:         claims.GivenName,
			FamilyName:        claims.FamilyName,
			Email:             claims.Email,
			PreferredUsername: claims.PreferredUsername,
		},
		Secure: session.Credentials{
			AccessToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
			IDToken:      rawIDToken,
			ExpiresAt:    session.ExpiresAt(issuedAt, expiresIn),
		},
		LoggedInAt: issuedAt,
	}, nil
}

// EndSessionURL returns the provider's logout URL for the session's ID
// token, or an empty string when no post logout redirect is configured.
func (a *Authenticator) EndSessionURL(idToken string) string {
	if a.postLogoutRedirectURL == "" {
		return ""
	}

	q := url.Values{}
	q.Set("client_id", a.clientID)
	q.Set("post_logout_redirect_uri", a.postLogoutRedirectURL)
	if idToken != "" {
		q.Set("id_token_hint", idToken)
	}

	return a.endSessionURL + "?" + q.Encode()
}

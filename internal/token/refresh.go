package token

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/openkcm/journal-gateway/internal/config"
)

// Tokens is the outcome of a refresh grant.
type Tokens struct {
	AccessToken  string        `json:"accessToken"`
	RefreshToken string        `json:"refreshToken,omitempty"`
	IDToken      string        `json:"idToken,omitempty"`
	ExpiresIn    time.Duration `json:"expiresIn"`
	IssuedAt     time.Time     `json:"issuedAt"`
}

type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// OAuth2Refresher exchanges refresh tokens at the token endpoint. The client
// credentials are sent in the form body.
type OAuth2Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
	timeout    time.Duration
	now        func() time.Time
}

var _ Refresher = (*OAuth2Refresher)(nil)

func NewOAuth2Refresher(cfg config.IdentityProvider, clientSecret string, httpClient *http.Client) *OAuth2Refresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationURL(),
				TokenURL:  cfg.TokenURL(),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		timeout:    cfg.RefreshTimeout,
		now:        time.Now,
	}
}

func (r *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
	issuedAt := r.now()

	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return Tokens{}, fmt.Errorf("exchanging refresh token: %w", err)
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 && !tok.Expiry.IsZero() {
		expiresIn = tok.Expiry.Sub(issuedAt)
	}

	idToken, _ := tok.Extra("id_token").(string)

	return Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		IDToken:      idToken,
		ExpiresIn:    expiresIn,
		IssuedAt:     issuedAt,
	}, nil
}

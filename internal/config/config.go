// Package config defines the necessary types to configure the application.
// An example config file config.yaml is provided in the repository.
package config

import (
	"strings"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

const (
	RefreshStoreMemory = "memory"
	RefreshStoreValkey = "valkey"
)

type Config struct {
	commoncfg.BaseConfig `mapstructure:",squash" yaml:",inline"`

	HTTP             HTTPServer       `yaml:"http"`
	Backend          Backend          `yaml:"backend"`
	IdentityProvider IdentityProvider `yaml:"identityProvider"`
	Session          Session          `yaml:"session"`
	TokenRefresh     TokenRefresh     `yaml:"tokenRefresh"`
	ValKey           ValKey           `yaml:"valkey"`
}

type HTTPServer struct {
	Address           string        `yaml:"address" default:":8080"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" default:"5s"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" default:"10s"`
	// PostLoginRedirect is where the browser lands after a successful login.
	PostLoginRedirect string `yaml:"postLoginRedirect" default:"/"`
}

// Backend configures the connection to the gRPC services.
type Backend struct {
	Address     string        `yaml:"address" default:"localhost:50052"`
	Plaintext   bool          `yaml:"plaintext"`
	ServerName  string        `yaml:"serverName"`
	CallTimeout time.Duration `yaml:"callTimeout" default:"15s"`
	// MTLS is optional. When set the client certificate is presented to the backend.
	MTLS *commoncfg.MTLS `yaml:"mtls"`
}

type IdentityProvider struct {
	// Domain is the Zitadel instance domain, e.g. my-instance.zitadel.cloud.
	Domain string `yaml:"domain"`
	// Issuer overrides the issuer URL derived from Domain.
	Issuer                string              `yaml:"issuer"`
	ClientID              string              `yaml:"clientID"`
	ClientSecret          commoncfg.SourceRef `yaml:"clientSecret"`
	RedirectURL           string              `yaml:"redirectURL" default:"http://localhost:8080/api/auth/callback"`
	PostLogoutRedirectURL string              `yaml:"postLogoutRedirectURL"`
	Scopes                []string            `yaml:"scopes"`

	IntrospectionTimeout time.Duration `yaml:"introspectionTimeout" default:"5s"`
	RefreshTimeout       time.Duration `yaml:"refreshTimeout" default:"10s"`
}

func (p IdentityProvider) IssuerURL() string {
	if p.Issuer != "" {
		return strings.TrimSuffix(p.Issuer, "/")
	}

	return "https://" + strings.TrimSuffix(p.Domain, "/")
}

func (p IdentityProvider) AuthorizationURL() string { return p.IssuerURL() + "/oauth/v2/authorize" }
func (p IdentityProvider) TokenURL() string         { return p.IssuerURL() + "/oauth/v2/token" }
func (p IdentityProvider) IntrospectionURL() string { return p.IssuerURL() + "/oauth/v2/introspect" }
func (p IdentityProvider) JWKSURL() string          { return p.IssuerURL() + "/oauth/v2/keys" }
func (p IdentityProvider) EndSessionURL() string    { return p.IssuerURL() + "/oidc/v1/end_session" }

// Session configures the encrypted session cookie and the short-lived login
// cookie that carries the OAuth state between login and callback.
type Session struct {
	Secret        commoncfg.SourceRef `yaml:"secret"`
	Cookie        CookieTemplate      `yaml:"cookie"`
	LoginCookie   CookieTemplate      `yaml:"loginCookie"`
	Duration      time.Duration       `yaml:"duration" default:"168h"`
	LoginStateTTL time.Duration       `yaml:"loginStateTTL" default:"10m"`
}

// TokenRefresh configures how concurrent refreshes of the same refresh token
// are coordinated. Concurrent refreshes are always coalesced; a positive
// ReuseWindow additionally keeps the refreshed tokens for that long.
type TokenRefresh struct {
	Store            string        `yaml:"store" default:"memory"`
	ReuseWindow      time.Duration `yaml:"reuseWindow" default:"0s"`
	LockTTL          time.Duration `yaml:"lockTTL" default:"15s"`
	LockPollInterval time.Duration `yaml:"lockPollInterval" default:"100ms"`
}

type ValKey struct {
	Host      commoncfg.SourceRef `yaml:"host"`
	User      commoncfg.SourceRef `yaml:"user"`
	Password  commoncfg.SourceRef `yaml:"password"`
	Prefix    string              `yaml:"prefix" default:"journal-gateway"`
	SecretRef commoncfg.SecretRef `yaml:"secretRef"`
}

package token

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zitadel/oidc/v3/pkg/client/rs"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/openkcm/journal-gateway/internal/config"
)

// Introspection is the transient result of asking the identity provider about
// an access token.
type Introspection struct {
	Active  bool
	Subject string
	Scopes  []string
	Expiry  time.Time
}

type Introspector interface {
	Introspect(ctx context.Context, accessToken string) (Introspection, error)
}

// ZitadelIntrospector calls the RFC 7662 introspection endpoint of the identity
// provider, authenticating with the client credentials.
type ZitadelIntrospector struct {
	server  rs.ResourceServer
	timeout time.Duration
}

var _ Introspector = (*ZitadelIntrospector)(nil)

func NewZitadelIntrospector(ctx context.Context, cfg config.IdentityProvider, clientSecret string, httpClient *http.Client) (*ZitadelIntrospector, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	server, err := rs.NewResourceServerClientCredentials(
		ctx,
		cfg.IssuerURL(),
		cfg.ClientID,
		clientSecret,
		rs.WithClient(httpClient),
		rs.WithStaticEndpoints(cfg.TokenURL(), cfg.IntrospectionURL()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource server: %w", err)
	}

	return &ZitadelIntrospector{server: server, timeout: cfg.IntrospectionTimeout}, nil
}

func (z *ZitadelIntrospector) Introspect(ctx context.Context, accessToken string) (Introspection, error) {
	if z.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, z.timeout)
		defer cancel()
	}

	resp, err := rs.Introspect[*oidc.IntrospectionResponse](ctx, z.server, accessToken)
	if err != nil {
		return Introspection{}, fmt.Errorf("calling introspection endpoint: %w", err)
	}

	if resp == nil {
		return Introspection{}, nil
	}

	result := Introspection{
		Active:  resp.Active,
		Subject: resp.Subject,
		Scopes:  []string(resp.Scope),
	}
	if resp.Expiration != 0 {
		result.Expiry = resp.Expiration.AsTime()
	}

	return result, nil
}

package business

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/auth"
	"github.com/openkcm/journal-gateway/internal/backend"
	"github.com/openkcm/journal-gateway/internal/business/server"
	"github.com/openkcm/journal-gateway/internal/config"
	"github.com/openkcm/journal-gateway/internal/rpc"
	"github.com/openkcm/journal-gateway/internal/session"
	"github.com/openkcm/journal-gateway/internal/token"
	"github.com/openkcm/journal-gateway/internal/token/tokenvalkey"
	"github.com/openkcm/journal-gateway/pkg/csrf"
)

var ErrUnknownRefreshStore = errors.New("unknown token refresh store")

// Main serves the public HTTP API until ctx is cancelled.
func Main(ctx context.Context, cfg *config.Config) error {
	deps, closeFn, err := initDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the gateway: %w", err)
	}

	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, deps)
}

// initDependencies wires the collaborators of the HTTP API. closeFn releases
// the backend connection and, if configured, the valkey client.
func initDependencies(ctx context.Context, cfg *config.Config) (_ server.Dependencies, closeFn func(), _ error) {
	var closers []func()
	closeAll := func() {
		for _, c := range slices.Backward(closers) {
			c()
		}
	}

	deps, err := func() (server.Dependencies, error) {
		sessionSecret, err := commoncfg.LoadValueFromSourceRef(cfg.Session.Secret)
		if err != nil {
			return server.Dependencies{}, fmt.Errorf("loading session secret: %w", err)
		}

		clientSecret, err := commoncfg.LoadValueFromSourceRef(cfg.IdentityProvider.ClientSecret)
		if err != nil {
			return server.Dependencies{}, fmt.Errorf("loading client secret: %w", err)
		}

		sessions, err := session.NewCookieStore(ctx, sessionSecret, cfg.Session.Cookie, cfg.Session.Duration)
		if err != nil {
			return server.Dependencies{}, fmt.Errorf("creating session store: %w", err)
		}

		loginCookie, err := auth.NewLoginCookie(sessionSecret, cfg.Session.LoginCookie, cfg.Session.LoginStateTTL)
		if err != nil {
			return server.Dependencies{}, fmt.Errorf("creating login cookie: %w", err)
		}

		signer, err := csrf.NewSigner(sessionSecret)
		if err != nil {
			return server.Dependencies{}, fmt.Errorf("creating state signer: %w", err)
		}

		httpClient := newIdentityProviderClient()

		introspector, err := token.NewZitadelIntrospector(ctx, cfg.IdentityProvider, string(clientSecret), httpClient)
		if err != nil {
			return server.Dependencies{}, fmt.Errorf("creating token introspector: %w", err)
		}

		coordinator, closeCoordinator, err := newCoordinator(ctx, cfg)
		if err != nil {
			return server.Dependencies{}, fmt.Errorf("creating refresh coordinator: %w", err)
		}
		closers = append(closers, closeCoordinator)

		tokens := token.NewManager(
			introspector,
			token.NewOAuth2Refresher(cfg.IdentityProvider, string(clientSecret), httpClient),
			token.WithCoordinator(coordinator),
			token.WithRefreshTimeout(max(cfg.IdentityProvider.RefreshTimeout, cfg.TokenRefresh.LockTTL)),
		)

		factory, err := rpc.NewFactory(ctx, cfg.Backend)
		if err != nil {
			return server.Dependencies{}, fmt.Errorf("creating backend factory: %w", err)
		}
		closers = append(closers, func() {
			if err := factory.Close(); err != nil {
				slogctx.Warn(ctx, "Failed to close the backend connection", "error", err)
			}
		})

		return server.Dependencies{
			Sessions:      sessions,
			Tokens:        tokens,
			Services:      backend.NewServices(factory),
			Authenticator: auth.NewAuthenticator(ctx, cfg.IdentityProvider, string(clientSecret), signer, httpClient),
			LoginCookie:   loginCookie,
		}, nil
	}()
	if err != nil {
		closeAll()
		return server.Dependencies{}, nil, err
	}

	return deps, closeAll, nil
}

// newCoordinator builds the refresh coordinator for the configured store.
func newCoordinator(ctx context.Context, cfg *config.Config) (token.Coordinator, func(), error) {
	refresh := cfg.TokenRefresh

	switch refresh.Store {
	case "", config.RefreshStoreMemory:
		return token.NewLocalCoordinator(refresh.ReuseWindow), func() {}, nil
	case config.RefreshStoreValkey:
		valkeyOpts, err := config.MakeValkeyClientOption(cfg.ValKey)
		if err != nil {
			return nil, nil, err
		}

		valkeyClient, err := valkey.NewClient(valkeyOpts)
		if err != nil {
			return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
		}

		slogctx.Info(ctx, "Coordinating token refreshes through valkey", "prefix", cfg.ValKey.Prefix)

		store := tokenvalkey.NewStore(valkeyClient, cfg.ValKey.Prefix)
		coordinator := token.NewLocalCoordinator(
			refresh.ReuseWindow,
			token.WithSharedStore(store, refresh.LockTTL, refresh.LockPollInterval),
		)

		return coordinator, valkeyClient.Close, nil
	default:
		return nil, nil, errors.Join(ErrUnknownRefreshStore, fmt.Errorf("store %q", refresh.Store))
	}
}

// newIdentityProviderClient returns the client used for every call to the
// identity provider. Per call timeouts are applied by its users.
func newIdentityProviderClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

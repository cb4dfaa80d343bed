// Package rpc owns the transport to the backend gRPC services and mints
// per-request channels that carry the caller's bearer credentials.
package rpc

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/samber/oops"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/config"
)

// Factory holds the one connection to the backend shared by all requests.
type Factory struct {
	conn        *grpc.ClientConn
	callTimeout time.Duration
	secure      bool
}

// NewFactory creates the backend connection. The connection is lazy, so a
// backend that is down does not fail start-up. Extra dial options are
// appended after the ones derived from cfg.
func NewFactory(ctx context.Context, cfg config.Backend, opts ...grpc.DialOption) (*Factory, error) {
	transportCreds, err := transportCredentials(cfg)
	if err != nil {
		return nil, oops.In("RPC Factory").
			WithContext(ctx).
			Wrapf(err, "loading backend transport credentials")
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(transportCreds),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, oops.In("RPC Factory").
			WithContext(ctx).
			Wrapf(err, "creating backend client for %s", cfg.Address)
	}

	slogctx.Info(ctx, "Created backend client", "address", cfg.Address, "plaintext", cfg.Plaintext)

	return &Factory{
		conn:        conn,
		callTimeout: cfg.CallTimeout,
		secure:      !cfg.Plaintext,
	}, nil
}

// NewChannel binds the shared connection to accessToken. An empty token
// yields an anonymous channel without call credentials. Token validity is
// not checked here; the backend rejects bad tokens on the first call.
func (f *Factory) NewChannel(accessToken string) *Channel {
	ch := &Channel{
		conn:        f.conn,
		callTimeout: f.callTimeout,
	}

	if accessToken != "" {
		ch.creds = NewBearerCredentials(accessToken, f.secure)
	}

	return ch
}

func (f *Factory) Close() error {
	return f.conn.Close()
}

func transportCredentials(cfg config.Backend) (credentials.TransportCredentials, error) {
	if cfg.Plaintext {
		return insecure.NewCredentials(), nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.MTLS != nil {
		loaded, err := commoncfg.LoadMTLSConfig(cfg.MTLS)
		if err != nil {
			return nil, err
		}

		tlsConfig = loaded
	}

	if cfg.ServerName != "" {
		tlsConfig.ServerName = cfg.ServerName
	}

	return credentials.NewTLS(tlsConfig), nil
}

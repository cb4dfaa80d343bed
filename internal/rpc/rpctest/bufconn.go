// Package rpctest runs in-memory gRPC servers for tests of code that talks
// to the backend through an rpc.Factory.
package rpctest

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/openkcm/journal-gateway/internal/config"
	"github.com/openkcm/journal-gateway/internal/rpc"
)

const bufSize = 1 << 20

// Start serves the services added by register on an in-memory listener and
// returns a Factory connected to it. Both are closed on test cleanup.
func Start(t *testing.T, register func(*grpc.Server)) *rpc.Factory {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	srv := grpc.NewServer()
	register(srv)

	go func() {
		_ = srv.Serve(lis)
	}()

	factory, err := rpc.NewFactory(t.Context(), config.Backend{
		Address:     "passthrough:///bufnet",
		Plaintext:   true,
		CallTimeout: 5 * time.Second,
	}, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = factory.Close()
		srv.Stop()
	})

	return factory
}

// Package valkeytest runs a throwaway valkey container for tests that need
// the shared refresh store.
package valkeytest

import (
	"context"
	"net"

	"github.com/docker/go-connections/nat"
	"github.com/valkey-io/valkey-go"

	valkeycontainer "github.com/testcontainers/testcontainers-go/modules/valkey"
	slogctx "github.com/veqryn/slog-context"
)

const (
	image       = "valkey/valkey:8-alpine"
	servicePort = nat.Port("6379")
)

// Start runs a valkey container and returns a connected client, the mapped
// port and a function that closes the client and removes the container.
// Any setup failure panics because it is only called from TestMain.
func Start(ctx context.Context) (valkey.Client, nat.Port, func(ctx context.Context)) {
	container, err := valkeycontainer.Run(ctx, image)
	if err != nil {
		slogctx.Error(ctx, "Failed to start valkey container", "image", image, "error", err)
		panic(err)
	}

	port, err := container.MappedPort(ctx, servicePort)
	if err != nil {
		slogctx.Error(ctx, "Failed to map valkey port", "error", err)
		panic(err)
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{Address(port)},
		DisableCache: true,
	})
	if err != nil {
		slogctx.Error(ctx, "Failed to create valkey client", "error", err)
		panic(err)
	}

	terminate := func(ctx context.Context) {
		client.Close()

		if err := container.Terminate(ctx); err != nil {
			slogctx.Error(ctx, "Failed to terminate valkey container", "error", err)
			panic(err)
		}
	}

	return client, port, terminate
}

// Address is the host:port of the container's mapped port.
func Address(port nat.Port) string {
	return net.JoinHostPort("localhost", port.Port())
}

package rpc

import (
	"context"

	"google.golang.org/grpc/credentials"
)

const authorizationKey = "authorization"

// BearerCredentials attaches an OAuth2 access token to every outbound call.
// gRPC asks for the metadata once per call, so each request's channel
// resolves its own token and nothing is baked into the shared connection.
type BearerCredentials struct {
	token      string
	requireTLS bool
}

var _ credentials.PerRPCCredentials = BearerCredentials{}

func NewBearerCredentials(token string, requireTLS bool) BearerCredentials {
	return BearerCredentials{token: token, requireTLS: requireTLS}
}

func (c BearerCredentials) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{
		authorizationKey: "Bearer " + c.token,
	}, nil
}

func (c BearerCredentials) RequireTransportSecurity() bool {
	return c.requireTLS
}

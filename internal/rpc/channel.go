package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Channel is a per-request view of the backend connection. It is cheap to
// create and must not be shared between requests.
type Channel struct {
	conn        grpc.ClientConnInterface
	creds       credentials.PerRPCCredentials
	callTimeout time.Duration
}

var _ grpc.ClientConnInterface = (*Channel)(nil)

// Anonymous reports whether calls go out without bearer credentials.
func (c *Channel) Anonymous() bool {
	return c.creds == nil
}

func (c *Channel) Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error {
	ctx, cancel := c.withCallTimeout(ctx)
	defer cancel()

	return c.conn.Invoke(ctx, method, args, reply, c.callOptions(opts)...)
}

// NewStream does not apply the call timeout since the stream outlives this call.
func (c *Channel) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return c.conn.NewStream(ctx, desc, method, c.callOptions(opts)...)
}

func (c *Channel) callOptions(opts []grpc.CallOption) []grpc.CallOption {
	callOpts := make([]grpc.CallOption, 0, len(opts)+2)
	callOpts = append(callOpts, grpc.CallContentSubtype(CodecName))

	if c.creds != nil {
		callOpts = append(callOpts, grpc.PerRPCCredentials(c.creds))
	}

	return append(callOpts, opts...)
}

func (c *Channel) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.callTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

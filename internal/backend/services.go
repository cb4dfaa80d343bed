// Package backend holds the typed stubs of the backend gRPC services and the
// per-request facade that builds them from the caller's session.
package backend

import (
	"context"

	"google.golang.org/grpc"

	"github.com/openkcm/journal-gateway/internal/rpc"
	"github.com/openkcm/journal-gateway/internal/session"
)

type ChannelFactory interface {
	NewChannel(accessToken string) *rpc.Channel
}

// Services builds stubs bound to the access token of the session in the
// request context. The token guard must have validated that session before
// any stub is created.
type Services struct {
	factory ChannelFactory
}

func NewServices(factory ChannelFactory) *Services {
	return &Services{factory: factory}
}

func (s *Services) Articles(ctx context.Context) *ArticlesClient {
	return NewArticlesClient(s.channel(ctx))
}

func (s *Services) Library(ctx context.Context) *LibraryClient {
	return NewLibraryClient(s.channel(ctx))
}

func (s *Services) Profile(ctx context.Context) *ProfileClient {
	return NewProfileClient(s.channel(ctx))
}

func (s *Services) Author(ctx context.Context) *AuthorClient {
	return NewAuthorClient(s.channel(ctx))
}

func (s *Services) channel(ctx context.Context) *rpc.Channel {
	return s.factory.NewChannel(session.AccessTokenFromContext(ctx))
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, service, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, req, resp); err != nil {
		return nil, TranslateError(ctx, service, method, err)
	}

	return resp, nil
}

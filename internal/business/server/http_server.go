// Package server exposes the gateway's HTTP API. Every /api route except the
// login flow runs behind the token guard, so handlers only ever see a session
// whose access token was validated for this request.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/oapi-codegen/runtime/strictmiddleware/nethttp"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/auth"
	"github.com/openkcm/journal-gateway/internal/backend"
	"github.com/openkcm/journal-gateway/internal/config"
	"github.com/openkcm/journal-gateway/internal/session"
	"github.com/openkcm/journal-gateway/internal/token"
)

// TokenValidator keeps the access token of a session valid.
type TokenValidator interface {
	EnsureValid(ctx context.Context, s session.Session) (session.Session, token.Outcome, error)
}

// Dependencies are the collaborators of the HTTP API.
type Dependencies struct {
	Sessions      *session.CookieStore
	Tokens        TokenValidator
	Services      *backend.Services
	Authenticator *auth.Authenticator
	LoginCookie   *auth.LoginCookie
}

type handler struct {
	cfg         *config.Config
	deps        Dependencies
	middlewares []nethttp.StrictHTTPMiddlewareFunc
}

// NewHandler builds the router of the HTTP API.
func NewHandler(ctx context.Context, cfg *config.Config, deps Dependencies) (http.Handler, error) {
	m, err := newMeters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	h := &handler{
		cfg:         cfg,
		deps:        deps,
		middlewares: []nethttp.StrictHTTPMiddlewareFunc{newTraceMiddleware(cfg, m)},
	}

	return h.routes(), nil
}

func (h *handler) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestContextMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(h.tokenGuard)

	api.Handle("/auth/login", h.operation("Login", h.login)).Methods(http.MethodGet)
	api.Handle("/auth/callback", h.operation("Callback", h.callback)).Methods(http.MethodGet)
	api.Handle("/auth/logout", h.operation("Logout", h.logout)).Methods(http.MethodPost)
	api.Handle("/auth/session", h.operation("GetSession", h.getSession)).Methods(http.MethodGet)

	api.Handle("/articles", h.operation("ListArticles", h.listArticles)).Methods(http.MethodGet)
	api.Handle("/articles", h.operation("CreateArticle", requireSession(h.createArticle))).Methods(http.MethodPost)
	api.Handle("/articles/doi/{doi:.+}", h.operation("GetArticleByDOI", h.getArticleByDOI)).Methods(http.MethodGet)
	api.Handle("/articles/{id}", h.operation("GetArticle", h.getArticle)).Methods(http.MethodGet)
	api.Handle("/articles/{id}", h.operation("UpdateArticle", requireSession(h.updateArticle))).Methods(http.MethodPut)
	api.Handle("/articles/{id}", h.operation("DeleteArticle", requireSession(h.deleteArticle))).Methods(http.MethodDelete)

	api.Handle("/libraries", h.operation("ListLibraries", requireSession(h.listLibraries))).Methods(http.MethodGet)
	api.Handle("/libraries", h.operation("CreateLibrary", requireSession(h.createLibrary))).Methods(http.MethodPost)
	api.Handle("/libraries/{id}", h.operation("GetLibrary", requireSession(h.getLibrary))).Methods(http.MethodGet)
	api.Handle("/libraries/{id}", h.operation("UpdateLibrary", requireSession(h.updateLibrary))).Methods(http.MethodPut)
	api.Handle("/libraries/{id}", h.operation("DeleteLibrary", requireSession(h.deleteLibrary))).Methods(http.MethodDelete)
	api.Handle("/libraries/{id}/articles", h.operation("SaveArticleToLibrary", requireSession(h.saveArticleToLibrary))).Methods(http.MethodPost)

	api.Handle("/profile", h.operation("CreateProfile", requireSession(h.createProfile))).Methods(http.MethodPost)
	api.Handle("/profile/me", h.operation("GetMyProfile", requireSession(h.getMyProfile))).Methods(http.MethodGet)
	api.Handle("/profile/{id}", h.operation("GetProfile", h.getProfile)).Methods(http.MethodGet)
	api.Handle("/profile/{id}", h.operation("UpdateProfile", requireSession(h.updateProfile))).Methods(http.MethodPut)

	api.Handle("/authors", h.operation("ListAuthors", h.listAuthors)).Methods(http.MethodGet)
	api.Handle("/authors/{id}", h.operation("GetAuthor", h.getAuthor)).Methods(http.MethodGet)

	api.Handle("/setup/status", h.operation("GetSetupStatus", requireSession(h.getSetupStatus))).Methods(http.MethodGet)

	return r
}

// createHTTPServer creates the API http server using the given config
func createHTTPServer(ctx context.Context, cfg *config.Config, deps Dependencies) (*http.Server, error) {
	handler, err := NewHandler(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}, nil
}

// StartHTTPServer serves the HTTP API until ctx is cancelled.
func StartHTTPServer(ctx context.Context, cfg *config.Config, deps Dependencies) error {
	server, err := createHTTPServer(ctx, cfg, deps)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create the HTTP server")
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Addresses may be given as network://address, e.g. unix:///tmp/gateway.sock.
	network := "tcp"
	if idx := strings.Index(server.Addr, "://"); idx != -1 {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}

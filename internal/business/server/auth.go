package server

import (
	"context"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/auth"
	"github.com/openkcm/journal-gateway/internal/session"
)

type sessionResponse struct {
	LoggedIn   bool          `json:"loggedIn"`
	User       *session.User `json:"user,omitempty"`
	LoggedInAt *time.Time    `json:"loggedInAt,omitempty"`
}

type logoutResponse struct {
	Success   bool   `json:"success"`
	LogoutURL string `json:"logoutUrl,omitempty"`
}

func (h *handler) postLoginRedirect() string {
	if h.cfg.HTTP.PostLoginRedirect == "" {
		return "/"
	}

	return h.cfg.HTTP.PostLoginRedirect
}

// login sends the browser to the identity provider.
func (h *handler) login(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	returnTo := auth.SafeReturnTo(r.URL.Query().Get("returnTo"), h.postLoginRedirect())

	state, authURL, err := h.deps.Authenticator.Begin(returnTo)
	if err != nil {
		return nil, err
	}

	if err := h.deps.LoginCookie.Set(w, state); err != nil {
		return nil, err
	}

	slogctx.Debug(ctx, "Redirecting user to the identity provider")

	return redirectResponse{location: authURL}, nil
}

// callback completes the login and stores the new session. When the identity
// provider reports an error the user is sent back without a session.
func (h *handler) callback(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	q := r.URL.Query()

	if idpErr := q.Get("error"); idpErr != "" {
		slogctx.Warn(ctx, "Identity provider rejected the login", "error", idpErr, "description", q.Get("error_description"))
		h.deps.LoginCookie.Clear(w)

		return redirectResponse{location: h.postLoginRedirect()}, nil
	}

	state, err := h.deps.LoginCookie.Get(r)
	if err != nil {
		return nil, err
	}
	h.deps.LoginCookie.Clear(w)

	s, err := h.deps.Authenticator.Complete(ctx, state, q.Get("state"), q.Get("code"))
	if err != nil {
		return nil, err
	}

	if err := h.deps.Sessions.Set(ctx, w, s); err != nil {
		return nil, err
	}

	slogctx.Info(ctx, "User logged in", "subject", s.User.Subject)

	return redirectResponse{location: auth.SafeReturnTo(state.ReturnTo, h.postLoginRedirect())}, nil
}

func (h *handler) logout(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
	s, _ := h.deps.Sessions.Get(r)
	h.deps.Sessions.Clear(w)

	slogctx.Info(ctx, "User logged out", "subject", s.User.Subject)

	return ok(logoutResponse{
		Success:   true,
		LogoutURL: h.deps.Authenticator.EndSessionURL(s.Secure.IDToken),
	}), nil
}

// getSession returns the client visible part of the stored session.
func (h *handler) getSession(_ context.Context, _ http.ResponseWriter, r *http.Request) (operationResponse, error) {
	s, found := h.deps.Sessions.Get(r)
	if !found || s.Anonymous() {
		return ok(sessionResponse{}), nil
	}

	public := s.Public()

	return ok(sessionResponse{
		LoggedIn:   true,
		User:       &public.User,
		LoggedInAt: &public.LoggedInAt,
	}), nil
}

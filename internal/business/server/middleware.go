package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/openkcm/common-sdk/pkg/commoncfg"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/serviceerr"
	"github.com/openkcm/journal-gateway/internal/session"
	"github.com/openkcm/journal-gateway/internal/token"
)

const (
	requestIDHeader = "X-Request-Id"
	authRoutePrefix = "/api/auth/"
)

// requestContextMiddleware attaches a request id to the logging context and
// echoes it to the client.
func requestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set(requestIDHeader, requestID)

		ctx := slogctx.With(r.Context(),
			commoncfg.AttrRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tokenGuard validates the session of every request before its handler runs.
// A refreshed session is written back to the cookie; a session that cannot be
// made valid is cleared and the request is rejected with 401. The login flow
// routes are exempt.
func (h *handler) tokenGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, authRoutePrefix) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		current, _ := h.deps.Sessions.Get(r)

		valid, outcome, err := h.deps.Tokens.EnsureValid(ctx, current)
		if err != nil {
			slogctx.Info(ctx, "Rejecting request with an invalid session", "subject", current.User.Subject, "error", err)
			h.deps.Sessions.Clear(w)
			writeError(ctx, w, serviceerr.ErrUnauthorized)

			return
		}

		if outcome == token.OutcomeRefreshed {
			if err := h.deps.Sessions.Set(ctx, w, valid); err != nil {
				writeError(ctx, w, err)
				return
			}
		}

		if !valid.IsZero() {
			ctx = session.NewContext(ctx, valid)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSession rejects anonymous requests.
func requireSession(fn operationFunc) operationFunc {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) (operationResponse, error) {
		s, found := session.FromContext(ctx)
		if !found || s.Anonymous() {
			return nil, serviceerr.ErrUnauthorized
		}

		return fn(ctx, w, r)
	}
}

func currentSession(ctx context.Context) session.Session {
	s, _ := session.FromContext(ctx)
	return s
}

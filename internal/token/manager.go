// Package token keeps the access token of a session valid. Every protected
// request goes through Manager.EnsureValid before any backend call is made.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	slogctx "github.com/veqryn/slog-context"

	"github.com/openkcm/journal-gateway/internal/serviceerr"
	"github.com/openkcm/journal-gateway/internal/session"
)

var ErrNoRefreshToken = errors.New("access token is inactive and no refresh token is available")

type Outcome int

const (
	// OutcomeAnonymous means the session carried no access token.
	OutcomeAnonymous Outcome = iota
	// OutcomeActive means the access token was reported active.
	OutcomeActive
	// OutcomeRefreshed means a new token pair was obtained.
	OutcomeRefreshed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeActive:
		return "active"
	case OutcomeRefreshed:
		return "refreshed"
	default:
		return "unknown"
	}
}

type Manager struct {
	introspector Introspector
	refresher    Refresher
	coordinator  Coordinator

	refreshTimeout time.Duration
	now            func() time.Time

	introspections metric.Int64Counter
	refreshes      metric.Int64Counter
}

type ManagerOption func(*Manager)

func WithCoordinator(c Coordinator) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.coordinator = c
		}
	}
}

// WithRefreshTimeout bounds the detached refresh, including waiting for a
// refresh running elsewhere.
func WithRefreshTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithMeter(meter metric.Meter) ManagerOption {
	return func(m *Manager) {
		if meter != nil {
			m.initMeters(meter)
		}
	}
}

func NewManager(introspector Introspector, refresher Refresher, opts ...ManagerOption) *Manager {
	m := &Manager{
		introspector:   introspector,
		refresher:      refresher,
		coordinator:    NewLocalCoordinator(0),
		refreshTimeout: 15 * time.Second,
		now:            time.Now,
	}
	m.initMeters(otel.Meter("github.com/openkcm/journal-gateway/internal/token"))

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m *Manager) initMeters(meter metric.Meter) {
	var err error

	m.introspections, err = meter.Int64Counter(
		"token.introspection",
		metric.WithDescription("Access token introspections by result"),
		metric.WithUnit("{introspection}"),
	)
	if err != nil {
		m.introspections = nil
	}

	m.refreshes, err = meter.Int64Counter(
		"token.refresh",
		metric.WithDescription("Access token refreshes by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		m.refreshes = nil
	}
}

// EnsureValid returns a session whose access token is currently valid.
//
// Anonymous sessions pass through without contacting the identity provider.
// An active token returns s unchanged. Otherwise the refresh token is
// exchanged and a new session value is returned; s itself is never modified.
// Introspection failures count as an inactive token. When no valid token can
// be obtained the error matches serviceerr.ErrUnauthorized and the caller must
// clear the stored session.
func (m *Manager) EnsureValid(ctx context.Context, s session.Session) (session.Session, Outcome, error) {
	if s.Anonymous() {
		return s, OutcomeAnonymous, nil
	}

	result, err := m.introspector.Introspect(ctx, s.Secure.AccessToken)
	switch {
	case err != nil:
		slogctx.Warn(ctx, "Token introspection failed; treating the access token as inactive", "error", err)
		m.count(ctx, m.introspections, "result", "error")
	case result.Active:
		m.count(ctx, m.introspections, "result", "active")
		return s, OutcomeActive, nil
	default:
		m.count(ctx, m.introspections, "result", "inactive")
	}

	if s.Secure.RefreshToken == "" {
		m.count(ctx, m.refreshes, "outcome", "missing_refresh_token")
		return session.Session{}, OutcomeAnonymous, errors.Join(serviceerr.ErrUnauthorized, ErrNoRefreshToken)
	}

	// The refresh outlives an aborted request so a rotated refresh token is
	// never half applied.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()

	tokens, err := m.coordinator.Do(refreshCtx, s.Secure.RefreshToken, m.refresher.Refresh)
	if err != nil {
		slogctx.Warn(ctx, "Token refresh failed", "error", err)
		m.count(ctx, m.refreshes, "outcome", "failed")
		return session.Session{}, OutcomeAnonymous, errors.Join(serviceerr.ErrUnauthorized, fmt.Errorf("refreshing access token: %w", err))
	}

	if tokens.AccessToken == "" {
		m.count(ctx, m.refreshes, "outcome", "failed")
		return session.Session{}, OutcomeAnonymous, errors.Join(serviceerr.ErrUnauthorized, errors.New("token endpoint returned no access token"))
	}

	m.count(ctx, m.refreshes, "outcome", "refreshed")
	slogctx.Info(ctx, "Refreshed the access token", "subject", s.User.Subject)

	return s.WithCredentials(m.credentialsFrom(tokens, s.Secure)), OutcomeRefreshed, nil
}

func (m *Manager) credentialsFrom(tokens Tokens, previous session.Credentials) session.Credentials {
	issuedAt := tokens.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = m.now()
	}

	creds := session.Credentials{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		ExpiresAt:    session.ExpiresAt(issuedAt, tokens.ExpiresIn),
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = previous.RefreshToken
	}
	if creds.IDToken == "" {
		creds.IDToken = previous.IDToken
	}

	return creds
}

func (m *Manager) count(ctx context.Context, counter metric.Int64Counter, key, value string) {
	if counter == nil {
		return
	}

	counter.Add(ctx, 1, metric.WithAttributes(attribute.String(key, value)))
}

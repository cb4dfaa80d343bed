package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	slogctx "github.com/veqryn/slog-context"
)

// RefreshFunc performs the actual refresh grant.
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// Coordinator serialises refreshes of the same refresh token.
type Coordinator interface {
	Do(ctx context.Context, refreshToken string, fn RefreshFunc) (Tokens, error)
}

// SharedStore lets gateway replicas share refresh results and a refresh lock.
// Keys are fingerprints of refresh tokens, never the tokens themselves.
type SharedStore interface {
	Load(ctx context.Context, key string) (Tokens, bool, error)
	Store(ctx context.Context, key string, tokens Tokens, ttl time.Duration) error
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// LocalCoordinator coalesces concurrent refreshes inside the process. With a
// positive reuse window the result is kept that long so requests still
// carrying the previous cookie reuse it instead of replaying a rotated token.
type LocalCoordinator struct {
	group       singleflight.Group
	reuseWindow time.Duration
	recent      *cache.Cache

	shared       SharedStore
	lockTTL      time.Duration
	pollInterval time.Duration
}

var _ Coordinator = (*LocalCoordinator)(nil)

type CoordinatorOption func(*LocalCoordinator)

// WithSharedStore coordinates with other replicas through store.
func WithSharedStore(store SharedStore, lockTTL, pollInterval time.Duration) CoordinatorOption {
	return func(c *LocalCoordinator) {
		c.shared = store
		if lockTTL > 0 {
			c.lockTTL = lockTTL
		}
		if pollInterval > 0 {
			c.pollInterval = pollInterval
		}
	}
}

func NewLocalCoordinator(reuseWindow time.Duration, opts ...CoordinatorOption) *LocalCoordinator {
	c := &LocalCoordinator{
		reuseWindow:  reuseWindow,
		lockTTL:      15 * time.Second,
		pollInterval: 100 * time.Millisecond,
	}
	if reuseWindow > 0 {
		c.recent = cache.New(reuseWindow, 2*reuseWindow)
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Fingerprint returns the key used for a refresh token.
func Fingerprint(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

func (c *LocalCoordinator) Do(ctx context.Context, refreshToken string, fn RefreshFunc) (Tokens, error) {
	key := Fingerprint(refreshToken)

	if tokens, ok := c.lookupRecent(key); ok {
		slogctx.Debug(ctx, "Reusing a recent token refresh")
		return tokens, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		if tokens, ok := c.lookupRecent(key); ok {
			return tokens, nil
		}

		tokens, err := c.refresh(ctx, key, refreshToken, fn)
		if err != nil {
			return Tokens{}, err
		}

		if c.recent != nil {
			c.recent.SetDefault(key, tokens)
		}

		return tokens, nil
	})
	if err != nil {
		return Tokens{}, err
	}

	if shared {
		slogctx.Debug(ctx, "Joined an in-flight token refresh")
	}

	return v.(Tokens), nil
}

func (c *LocalCoordinator) lookupRecent(key string) (Tokens, bool) {
	if c.recent == nil {
		return Tokens{}, false
	}

	v, ok := c.recent.Get(key)
	if !ok {
		return Tokens{}, false
	}

	return v.(Tokens), true
}

func (c *LocalCoordinator) refresh(ctx context.Context, key, refreshToken string, fn RefreshFunc) (Tokens, error) {
	if c.shared == nil {
		return fn(ctx, refreshToken)
	}

	for {
		if tokens, ok := c.loadShared(ctx, key); ok {
			return tokens, nil
		}

		acquired, err := c.shared.Acquire(ctx, key, c.lockTTL)
		if err != nil {
			slogctx.Warn(ctx, "Failed to acquire the shared refresh lock; refreshing without it", "error", err)
			return fn(ctx, refreshToken)
		}

		if acquired {
			return c.refreshLocked(ctx, key, refreshToken, fn)
		}

		select {
		case <-ctx.Done():
			return Tokens{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *LocalCoordinator) refreshLocked(ctx context.Context, key, refreshToken string, fn RefreshFunc) (Tokens, error) {
	defer func() {
		if err := c.shared.Release(context.WithoutCancel(ctx), key); err != nil {
			slogctx.Warn(ctx, "Failed to release the shared refresh lock", "error", err)
		}
	}()

	// Another replica may have finished between the load and the acquire.
	if tokens, ok := c.loadShared(ctx, key); ok {
		return tokens, nil
	}

	tokens, err := fn(ctx, refreshToken)
	if err != nil {
		return Tokens{}, err
	}

	// Replicas waiting on the lock read the result after release, so it must
	// outlive their poll even without a reuse window.
	if err := c.shared.Store(ctx, key, tokens, c.sharedResultTTL()); err != nil {
		slogctx.Warn(ctx, "Failed to share the token refresh result", "error", err)
	}

	return tokens, nil
}

func (c *LocalCoordinator) sharedResultTTL() time.Duration {
	return max(c.reuseWindow, c.lockTTL+c.pollInterval)
}

func (c *LocalCoordinator) loadShared(ctx context.Context, key string) (Tokens, bool) {
	tokens, ok, err := c.shared.Load(ctx, key)
	if err != nil {
		slogctx.Warn(ctx, "Failed to load a shared token refresh result", "error", err)
		return Tokens{}, false
	}

	return tokens, ok
}

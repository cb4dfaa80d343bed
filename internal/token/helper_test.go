package token_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openkcm/journal-gateway/internal/token"
)

type fakeIntrospector struct {
	active map[string]bool
	err    error
	calls  atomic.Int32
}

func (f *fakeIntrospector) Introspect(_ context.Context, accessToken string) (token.Introspection, error) {
	f.calls.Add(1)
	if f.err != nil {
		return token.Introspection{}, f.err
	}

	return token.Introspection{Active: f.active[accessToken], Subject: "user-1"}, nil
}

type fakeRefresher struct {
	mu     sync.Mutex
	issued int
	// omitRefreshToken simulates an identity provider without rotation.
	omitRefreshToken bool
	err              error
	delay            time.Duration
	calls            atomic.Int32
	seen             []string
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (token.Tokens, error) {
	f.calls.Add(1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return token.Tokens{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen = append(f.seen, refreshToken)
	if f.err != nil {
		return token.Tokens{}, f.err
	}

	f.issued++
	tokens := token.Tokens{
		AccessToken: "access-" + strconv.Itoa(f.issued),
		ExpiresIn:   time.Hour,
		IssuedAt:    time.Now(),
	}
	if !f.omitRefreshToken {
		tokens.RefreshToken = "refresh-" + strconv.Itoa(f.issued)
	}

	return tokens, nil
}

// memorySharedStore stands in for valkey in coordinator tests.
type memorySharedStore struct {
	mu      sync.Mutex
	results map[string]token.Tokens
	ttls    map[string]time.Duration
	locks   map[string]bool
	failing bool
}

func newMemorySharedStore() *memorySharedStore {
	return &memorySharedStore{
		results: map[string]token.Tokens{},
		ttls:    map[string]time.Duration{},
		locks:   map[string]bool{},
	}
}

var errStoreDown = errors.New("store down")

func (s *memorySharedStore) Load(_ context.Context, key string) (token.Tokens, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return token.Tokens{}, false, errStoreDown
	}
	t, ok := s.results[key]

	return t, ok, nil
}

func (s *memorySharedStore) Store(_ context.Context, key string, tokens token.Tokens, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return errStoreDown
	}
	s.results[key] = tokens
	s.ttls[key] = ttl

	return nil
}

func (s *memorySharedStore) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failing {
		return false, errStoreDown
	}
	if s.locks[key] {
		return false, nil
	}
	s.locks[key] = true

	return true, nil
}

func (s *memorySharedStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.locks, key)

	return nil
}

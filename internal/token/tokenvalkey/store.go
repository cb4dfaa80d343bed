// Package tokenvalkey shares token refresh results and the refresh lock
// between gateway replicas through valkey.
package tokenvalkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/openkcm/journal-gateway/internal/token"
)

const (
	objectTypeResult = "refresh"
	objectTypeLock   = "refreshlock"
)

var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	valkey valkey.Client
	prefix string
	owner  string
}

var _ token.SharedStore = (*Store)(nil)

func NewStore(valkeyClient valkey.Client, prefix string) *Store {
	return &Store{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
		owner:  uuid.NewString(),
	}
}

func (s *Store) Load(ctx context.Context, key string) (token.Tokens, bool, error) {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(objectTypeResult, key)).Build()).AsBytes()
	if err != nil {
		valkeyErr, ok := valkey.IsValkeyErr(err)
		if ok && valkeyErr.IsNil() {
			return token.Tokens{}, false, nil
		}

		return token.Tokens{}, false, fmt.Errorf("executing get command: %w", err)
	}

	var tokens token.Tokens
	if err := json.Unmarshal(bytes, &tokens); err != nil {
		return token.Tokens{}, false, fmt.Errorf("unmarshaling refresh result: %w", err)
	}

	return tokens, true, nil
}

func (s *Store) Store(ctx context.Context, key string, tokens token.Tokens, ttl time.Duration) error {
	bytes, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshaling refresh result: %w", err)
	}

	cmd := s.valkey.B().Set().
		Key(s.key(objectTypeResult, key)).
		Value(valkey.BinaryString(bytes)).
		PxMilliseconds(ttl.Milliseconds()).
		Build()
	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

// Acquire takes the refresh lock for key. It reports false when another
// replica holds it.
func (s *Store) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	cmd := s.valkey.B().Set().
		Key(s.key(objectTypeLock, key)).
		Value(s.owner).
		Nx().
		PxMilliseconds(ttl.Milliseconds()).
		Build()

	err := s.valkey.Do(ctx, cmd).Error()
	if err != nil {
		valkeyErr, ok := valkey.IsValkeyErr(err)
		if ok && valkeyErr.IsNil() {
			return false, nil
		}

		return false, fmt.Errorf("executing set nx command: %w", err)
	}

	return true, nil
}

// Release drops the lock for key if this store still owns it.
func (s *Store) Release(ctx context.Context, key string) error {
	err := releaseScript.Exec(ctx, s.valkey, []string{s.key(objectTypeLock, key)}, []string{s.owner}).Error()
	if err != nil {
		return fmt.Errorf("executing release script: %w", err)
	}

	return nil
}

func (s *Store) key(objectType, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, objectType, id)
}

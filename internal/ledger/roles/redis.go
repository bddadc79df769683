package roles

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	id "aidledger/pkg/domain"
)

const keyPrefix = "aidledger:roles:"

// RedisStore keeps each role as a Redis set so several ledger processes share
// one membership table.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func roleKey(role Role) string {
	return keyPrefix + string(role)
}

func (s *RedisStore) Grant(ctx context.Context, role Role, identity id.Identity) error {
	if err := s.client.SAdd(ctx, roleKey(role), identity.String()).Err(); err != nil {
		return fmt.Errorf("grant %s: %w", role, err)
	}
	return nil
}

func (s *RedisStore) Revoke(ctx context.Context, role Role, identity id.Identity) error {
	if err := s.client.SRem(ctx, roleKey(role), identity.String()).Err(); err != nil {
		return fmt.Errorf("revoke %s: %w", role, err)
	}
	return nil
}

func (s *RedisStore) Has(ctx context.Context, role Role, identity id.Identity) (bool, error) {
	ok, err := s.client.SIsMember(ctx, roleKey(role), identity.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", role, err)
	}
	return ok, nil
}

// Members returns the role's members sorted by identity.
func (s *RedisStore) Members(ctx context.Context, role Role) ([]id.Identity, error) {
	raw, err := s.client.SMembers(ctx, roleKey(role)).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", role, err)
	}
	out := make([]id.Identity, 0, len(raw))
	for _, m := range raw {
		out = append(out, id.Identity(m))
	}
	slices.Sort(out)
	return out, nil
}

package checkpoint

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the checkpoint as a Redis set.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedisStore returns a store using the set at key.
func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

// Load returns the members of the set. A missing key is an empty set.
func (s *RedisStore) Load(ctx context.Context) (map[string]struct{}, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load checkpoint set: %w", err)
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}

// Save replaces the set inside a MULTI/EXEC transaction, so readers never
// observe a partially written set.
func (s *RedisStore) Save(ctx context.Context, processed map[string]struct{}) error {
	ids := Sorted(processed)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(ids) > 0 {
			members := make([]any, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, s.key, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save checkpoint set: %w", err)
	}
	return nil
}

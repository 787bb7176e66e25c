package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store tracks which users currently hold live connections, in redis so
// other instances can see presence too. Connections are counted per
// user; the user goes offline when the last one drops.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore wraps a redis client. A nil client disables presence; every
// method becomes a no-op.
func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix, ttl: 5 * time.Minute}
}

func (s *Store) key(userID int) string {
	return fmt.Sprintf("%s:presence:%d", s.prefix, userID)
}

// Connected increments the user's live connection count.
func (s *Store) Connected(ctx context.Context, userID int) error {
	if s == nil || s.client == nil {
		return nil
	}
	key := s.key(userID)
	if err := s.client.Incr(ctx, key).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key, s.ttl).Err()
}

// Disconnected decrements the count and removes the key at zero.
func (s *Store) Disconnected(ctx context.Context, userID int) error {
	if s == nil || s.client == nil {
		return nil
	}
	key := s.key(userID)
	n, err := s.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return s.client.Del(ctx, key).Err()
	}
	return nil
}

// Online reports whether the user has any live connection.
func (s *Store) Online(ctx context.Context, userID int) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	n, err := s.client.Exists(ctx, s.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// RedisDedupeStore backs deduplication with Redis so multiple gateway
// instances share one claim space. Claims expire via Redis TTL.
type RedisDedupeStore struct {
	client rueidis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDedupeStore connects to Redis at addr. Keys are namespaced under
// prefix and expire after ttl (a non-positive ttl defaults to 24h; Redis
// claims must always expire to bound keyspace growth).
func NewRedisDedupeStore(addr, prefix string, ttl time.Duration) (*RedisDedupeStore, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis dedupe store: %w", err)
	}
	if prefix == "" {
		prefix = "custos:webhook"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedupeStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisDedupeStore) key(eventID string) string {
	return s.prefix + ":" + eventID
}

// TryClaim implements DedupeStore via SET NX EX, which is atomic on the
// Redis side.
func (s *RedisDedupeStore) TryClaim(ctx context.Context, eventID string) (bool, error) {
	cmd := s.client.B().Set().Key(s.key(eventID)).Value("1").Nx().Ex(s.ttl).Build()
	resp := s.client.Do(ctx, cmd)
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			// NX did not set: someone already holds the claim.
			return false, nil
		}
		return false, fmt.Errorf("redis dedupe claim: %w", err)
	}
	return true, nil
}

// HasProcessed implements DedupeStore.
func (s *RedisDedupeStore) HasProcessed(ctx context.Context, eventID string) (bool, error) {
	cmd := s.client.B().Exists().Key(s.key(eventID)).Build()
	n, err := s.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("redis dedupe lookup: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed implements DedupeStore.
func (s *RedisDedupeStore) MarkProcessed(ctx context.Context, eventID string) error {
	cmd := s.client.B().Set().Key(s.key(eventID)).Value("1").Ex(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis dedupe mark: %w", err)
	}
	return nil
}

// Release implements DedupeStore.
func (s *RedisDedupeStore) Release(ctx context.Context, eventID string) error {
	cmd := s.client.B().Del().Key(s.key(eventID)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis dedupe release: %w", err)
	}
	return nil
}

// Close shuts down the Redis connection.
func (s *RedisDedupeStore) Close() error {
	s.client.Close()
	return nil
}

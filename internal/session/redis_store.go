package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "salonfront:session:"

// RedisStore keeps visitor records in Redis so storefront replicas share
// sessions. One key per visitor holds the whole record, so credential and
// profile are stored and removed together.
type RedisStore struct {
	client *redis.Client
	maxAge time.Duration
	now    func() time.Time
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(addr, password string, maxAge time.Duration) *RedisStore {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// WithClock overrides the store's clock, for tests.
func (s *RedisStore) WithClock(now func() time.Time) *RedisStore {
	s.now = now
	return s
}

func (s *RedisStore) Load(ctx context.Context, visitorID string) (Record, bool, error) {
	key := redisKeyPrefix + visitorID
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("read session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil || rec.Token == "" {
		_ = s.client.Del(ctx, key).Err()
		return Record{}, false, nil
	}
	if expired(rec, s.maxAge, s.now()) {
		_ = s.client.Del(ctx, key).Err()
		return Record{}, false, nil
	}
	return rec, true, nil
}

// Save writes the record with a TTL matching the max age, so Redis reaps
// what Load would purge anyway.
func (s *RedisStore) Save(ctx context.Context, visitorID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+visitorID, data, s.maxAge).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, visitorID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+visitorID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

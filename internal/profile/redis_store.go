package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/udtms/txmonitor/internal/domain"
)

// RedisStore keeps each profile as a JSON value under prefix+customerID.
// Profiles not written for ttl expire, which bounds retention of idle
// customers. A zero ttl keeps profiles forever.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client goredis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Connect builds a client from the given options and pings it.
func Connect(ctx context.Context, opts *goredis.UniversalOptions) (goredis.UniversalClient, error) {
	c := goredis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func (s *RedisStore) key(customerID string) string {
	return s.prefix + "profile:" + customerID
}

func (s *RedisStore) Get(ctx context.Context, customerID string) (*domain.CustomerProfile, error) {
	raw, err := s.client.Get(ctx, s.key(customerID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", customerID, err)
	}
	var p domain.CustomerProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", customerID, err)
	}
	return &p, nil
}

func (s *RedisStore) Put(ctx context.Context, p *domain.CustomerProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.CustomerID, err)
	}
	if err := s.client.Set(ctx, s.key(p.CustomerID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("put profile %s: %w", p.CustomerID, err)
	}
	return nil
}

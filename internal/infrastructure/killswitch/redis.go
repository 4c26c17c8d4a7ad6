package killswitch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "signal_trader:kill"

// RedisSource reads the kill flag from a single key, so several bot
// processes can share one switch. A missing key means "not killed".
type RedisSource struct {
	client redis.UniversalClient
	key    string
}

func NewRedisSource(client redis.UniversalClient, key string) *RedisSource {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSource{client: client, key: key}
}

// DialRedis builds a client from a redis:// URL.
func DialRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisSource) Key() string { return s.key }

func (s *RedisSource) Read(ctx context.Context) (bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	switch strings.ToLower(strings.TrimSpace(val)) {
	case "", "0", "false", "off":
		return false, nil
	default:
		return true, nil
	}
}

func (s *RedisSource) Set(ctx context.Context, reason string) error {
	if reason == "" {
		reason = "1"
	}
	return s.client.Set(ctx, s.key, reason, 0).Err()
}

func (s *RedisSource) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}

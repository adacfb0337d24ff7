package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/xompass/storefront-rest/otp"
)

const (
	otpCodePrefix     = "otp:code:"
	otpAttemptsPrefix = "otp:attempts:"
)

// RedisCodeStore keeps pending OTP challenges. The failed attempt counter lives
// in its own key so it can be incremented atomically.
type RedisCodeStore struct {
	client *redis.Client
}

func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func (s *RedisCodeStore) Save(ctx context.Context, c otp.Challenge, ttl time.Duration) error {
	c.Attempts = 0
	raw, err := sonic.Marshal(c)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, otpCodePrefix+c.Destination, raw, ttl)
	pipe.Del(ctx, otpAttemptsPrefix+c.Destination)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisCodeStore) Get(ctx context.Context, destination string) (*otp.Challenge, error) {
	pipe := s.client.Pipeline()
	codeCmd := pipe.Get(ctx, otpCodePrefix+destination)
	attemptsCmd := pipe.Get(ctx, otpAttemptsPrefix+destination)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	raw, err := codeCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var out otp.Challenge
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	attempts, err := attemptsCmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, err
	default:
		out.Attempts, _ = strconv.Atoi(attempts)
	}

	return &out, nil
}

func (s *RedisCodeStore) IncrementAttempts(ctx context.Context, destination string) (int, error) {
	ttl, err := s.client.PTTL(ctx, otpCodePrefix+destination).Result()
	if err != nil {
		return 0, err
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := s.client.TxPipeline()
	incrCmd := pipe.Incr(ctx, otpAttemptsPrefix+destination)
	pipe.ExpireNX(ctx, otpAttemptsPrefix+destination, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	count, err := incrCmd.Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *RedisCodeStore) Delete(ctx context.Context, destination string) error {
	return s.client.Del(ctx, otpCodePrefix+destination, otpAttemptsPrefix+destination).Err()
}

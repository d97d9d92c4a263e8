// Package applock provides Redis-backed cross-process locks for resources
// outside classification: ActivityPub object processing and chart inserts.
package applock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultTTL           = 30 * time.Second
	DefaultRetryInterval = 50 * time.Millisecond

	apObjectPrefix    = "ap-object:"
	chartInsertPrefix = "chart-insert:"
)

var (
	ErrNotAcquired = errors.New("applock: lock not acquired")
	ErrLockLost    = errors.New("applock: lock expired or taken over")
)

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Client is the subset of the Redis API the locker needs; *redis.Client and
// *redis.ClusterClient satisfy it.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

var (
	_ Client = (*redis.Client)(nil)
	_ Client = (*redis.ClusterClient)(nil)
)

// Release unlocks a held lock.
type Release func(ctx context.Context) error

// Service hands out named locks.
type Service struct {
	client   Client
	ttl      time.Duration
	interval time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithTTL sets how long a lock lives without being released.
func WithTTL(d time.Duration) Option {
	return func(s *Service) { s.ttl = d }
}

// WithRetryInterval sets the pause between acquisition attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// New returns a lock service on client.
func New(client Client, opts ...Option) *Service {
	s := &Service{client: client, ttl: DefaultTTL, interval: DefaultRetryInterval}
	for _, o := range opts {
		o(s)
	}
	return s
}

// APObjectLock locks processing of the ActivityPub object with the given URI.
func (s *Service) APObjectLock(ctx context.Context, uri string) (Release, error) {
	return s.Acquire(ctx, apObjectPrefix+uri)
}

// ChartInsertLock locks a chart insert batch.
func (s *Service) ChartInsertLock(ctx context.Context, key string) (Release, error) {
	return s.Acquire(ctx, chartInsertPrefix+key)
}

// Acquire blocks until key is locked, ctx ends, or a full TTL has passed
// without success. Redis errors abort immediately.
func (s *Service) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()

	b := retry.WithMaxDuration(s.ttl, retry.NewConstant(s.interval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ok, err := s.client.SetNX(ctx, key, token, s.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(ErrNotAcquired)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("applock: %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		n, err := s.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("applock: release %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("applock: release %s: %w", key, ErrLockLost)
		}
		return nil
	}, nil
}

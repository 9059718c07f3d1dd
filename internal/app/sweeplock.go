package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nannygold/billing-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SweepLocker serializes bulk sweeps across service replicas.
type SweepLocker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error)
}

// NoopSweepLocker always grants the lock. Database constraints still prevent
// double billing without it.
type NoopSweepLocker struct{}

func (NoopSweepLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}

var releaseSweepLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSweepLocker implements SweepLocker with SET NX PX and a token-checked release.
type RedisSweepLocker struct {
	client redis.UniversalClient
	keys   redisKeyspace
}

func NewRedisSweepLocker(client redis.UniversalClient, prefix string) *RedisSweepLocker {
	return &RedisSweepLocker{client: client, keys: newRedisKeyspace(prefix, "nannygold:billing:sweep")}
}

// Acquire takes the named lock for ttl. The returned release only deletes the
// key while it still holds this caller's token.
func (l *RedisSweepLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	if l == nil || l.client == nil {
		return func() {}, true, nil
	}

	key := l.keys.key(name)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseSweepLockScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

// acquireSweep takes the sweep lock. Redis outages degrade to running unlocked.
func (s Service) acquireSweep(ctx context.Context, name string) (func(), error) {
	release, ok, err := s.locker.Acquire(ctx, name, s.opts.SweepLockTTL)
	if err != nil {
		s.logger.Warn("sweep lock unavailable, continuing without it", "sweep", name, "error", err)
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSweepInProgress, name)
	}
	return release, nil
}

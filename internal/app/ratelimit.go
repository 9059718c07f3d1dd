package app

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter throttles card setup with a sliding window log: each hit is
// a sorted-set member scored by its time, so a burst straddling a minute
// boundary still counts as one window.
type RedisRateLimiter struct {
	client redis.UniversalClient
	keys   redisKeyspace
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		keys:   newRedisKeyspace(prefix, "nannygold:billing:rate_limit"),
		now:    time.Now,
	}
}

// ConsumeRateLimit records one hit for subject within scope and returns the
// hits inside the trailing window, this one included, and the seconds until
// the oldest of them expires. Rejected hits are recorded too, so a client that
// keeps retrying stays limited. A nil client, a non-positive limit or an empty
// subject disables limiting.
func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	scope, subject = strings.TrimSpace(scope), strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	now := r.now()
	key := r.keys.key(scope, subject)

	var count *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.Add(-window).UnixMicro(), 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
		count = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	first := now
	if hits := oldest.Val(); len(hits) > 0 {
		first = time.UnixMicro(int64(hits[0].Score))
	}
	return int(count.Val()), retryAfterSeconds(first, now, window), nil
}

// retryAfterSeconds is the whole seconds until a hit made at oldest leaves the
// window, never less than one.
func retryAfterSeconds(oldest, now time.Time, window time.Duration) int {
	secs := int(math.Ceil(oldest.Add(window).Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

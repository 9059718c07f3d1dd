package app

import (
	"context"
	"testing"
	"time"
)

func TestRedisKeyspace(t *testing.T) {
	tests := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{prefix: " billing:locks: ", parts: []string{"captures"}, want: "billing:locks:captures"},
		{prefix: "", parts: []string{"x"}, want: "fallback:x"},
		{prefix: ":::", parts: []string{"payment_methods", "c-1"}, want: "fallback:payment_methods:c-1"},
	}
	for _, tt := range tests {
		if got := newRedisKeyspace(tt.prefix, "fallback").key(tt.parts...); got != tt.want {
			t.Fatalf("prefix %q: expected %s, got %s", tt.prefix, tt.want, got)
		}
	}
}

func TestRedisSweepLocker_NilClientGrantsLock(t *testing.T) {
	locker := NewRedisSweepLocker(nil, "")
	if locker.keys != "nannygold:billing:sweep" {
		t.Fatalf("expected default prefix, got %s", locker.keys)
	}

	release, ok, err := locker.Acquire(context.Background(), "captures", time.Minute)
	if err != nil || !ok || release == nil {
		t.Fatalf("expected nil client to grant the lock, got ok=%v err=%v", ok, err)
	}
	release()
}

func TestRedisRateLimiter_DisabledWithoutClient(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "")
	if limiter.keys != "nannygold:billing:rate_limit" {
		t.Fatalf("expected default prefix, got %s", limiter.keys)
	}
	count, retry, err := limiter.ConsumeRateLimit(context.Background(), "payment_methods", "client-1", 5, time.Minute)
	if err != nil || count != 0 || retry != 0 {
		t.Fatalf("expected limiter to be a no-op, got count=%d retry=%d err=%v", count, retry, err)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Date(2026, time.October, 15, 9, 0, 30, 0, time.UTC)
	tests := []struct {
		name   string
		oldest time.Time
		want   int
	}{
		{name: "hit just made", oldest: now, want: 60},
		{name: "half window ago", oldest: now.Add(-30 * time.Second), want: 30},
		{name: "rounds up", oldest: now.Add(-59*time.Second - 500*time.Millisecond), want: 1},
		{name: "already expired", oldest: now.Add(-2 * time.Minute), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryAfterSeconds(tt.oldest, now, time.Minute); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

package app

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestConsumeRateLimit_NilClientDisablesLimiting(t *testing.T) {
	// A Redis-less bootstrap hands the constructor a nil *redis.Client. The
	// limiter must report zero consumption instead of dereferencing it.
	var client *redis.Client
	limiter := NewRedisTransferRateLimiter(client, "remit:rate_limit")

	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "transfer_create", "user-1", 10, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 || retryAfter != 0 {
		t.Errorf("expected limiting disabled, got count=%d retryAfter=%d", count, retryAfter)
	}
}

func TestConsumeRateLimit_NilReceiverDisablesLimiting(t *testing.T) {
	var limiter *RedisTransferRateLimiter

	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "transfer_create", "user-1", 10, time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 || retryAfter != 0 {
		t.Errorf("expected limiting disabled, got count=%d retryAfter=%d", count, retryAfter)
	}
}

func TestConsumeRateLimit_ZeroLimitOrWindowDisablesLimiting(t *testing.T) {
	var client *redis.Client
	limiter := NewRedisTransferRateLimiter(client, "")

	if count, _, _ := limiter.ConsumeRateLimit(context.Background(), "transfer_create", "user-1", 0, time.Hour); count != 0 {
		t.Errorf("expected zero limit to disable limiting, got count=%d", count)
	}
	if count, _, _ := limiter.ConsumeRateLimit(context.Background(), "transfer_create", "user-1", 10, 0); count != 0 {
		t.Errorf("expected zero window to disable limiting, got count=%d", count)
	}
}

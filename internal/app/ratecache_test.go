package app

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/volapay/remit-service/internal/store"
)

func TestRateCache_NilRedisClientReadsDatabase(t *testing.T) {
	// A Redis-less bootstrap hands the constructor a nil *redis.Client. The
	// cache must fall through to the repository instead of dereferencing it.
	var client *redis.Client
	cache := NewRateCache(newStubRepo(), client, 0)

	rate, err := cache.LatestRate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.NewFromInt(3200)) {
		t.Errorf("expected rate 3200, got %s", rate)
	}
}

func TestRateCache_NoExchangeRatePropagates(t *testing.T) {
	repo := newStubRepo()
	repo.rateErr = store.ErrNoExchangeRate

	var client *redis.Client
	cache := NewRateCache(repo, client, 0)

	if _, err := cache.LatestRate(context.Background()); !errors.Is(err, store.ErrNoExchangeRate) {
		t.Fatalf("expected ErrNoExchangeRate, got %v", err)
	}
}

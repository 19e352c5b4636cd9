/**
 * @description
 * Exchange-rate read path with an injected Redis TTL cache in front of the
 * database. The rate lookup sits on the hot path of both transfer creation and
 * every billing webhook, and the latest-row query is identical for all of
 * them. The cache is an explicit dependency with a bounded lifetime, not a
 * package-level singleton, so multiple instances share one view through Redis
 * and tests can run without it.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/volapay/remit-service/internal/store"
)

const rateCacheKey = "remit:exchange_rate:latest"

// RateSource yields the exchange rate applied to new transfers.
type RateSource interface {
	LatestRate(ctx context.Context) (decimal.Decimal, error)
}

// RateCache reads the latest CAD→MGA rate through Redis with a short TTL,
// falling back to the database. A nil Redis client degrades to direct reads.
// The client is the concrete pointer rather than an interface so a nil from
// a Redis-less bootstrap stays nil here.
type RateCache struct {
	repo  store.Repository
	redis *redis.Client
	ttl   time.Duration
}

// NewRateCache creates a rate source backed by the repository and an optional
// Redis cache.
func NewRateCache(repo store.Repository, client *redis.Client, ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RateCache{repo: repo, redis: client, ttl: ttl}
}

// LatestRate returns the most recently created exchange rate. Cache problems
// are logged and bypassed; store.ErrNoExchangeRate propagates untouched since
// a missing rate is a hard dependency failure, not a cache miss.
func (c *RateCache) LatestRate(ctx context.Context) (decimal.Decimal, error) {
	if c.redis != nil {
		cached, err := c.redis.Get(ctx, rateCacheKey).Result()
		if err == nil {
			if rate, parseErr := decimal.NewFromString(cached); parseErr == nil {
				return rate, nil
			}
			log.Printf("level=warn component=rate_cache msg=\"unparsable cached rate; falling back to database\" value=%q", cached)
		} else if err != redis.Nil {
			log.Printf("level=warn component=rate_cache msg=\"cache read failed; falling back to database\" err=%v", err)
		}
	}

	latest, err := c.repo.GetLatestExchangeRate(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, rateCacheKey, latest.Rate.String(), c.ttl).Err(); err != nil {
			log.Printf("level=warn component=rate_cache msg=\"cache write failed\" err=%v", err)
		}
	}
	return latest.Rate, nil
}

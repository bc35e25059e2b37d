// Package cache provides the Redis-backed TruthScore cache. Scores are pure
// projections of trader aggregates: the cache is a read accelerator, never a
// source of truth, so every entry carries a TTL and misses are harmless.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/truthmarkets/integrity-engine/pkg/models"
)

const keyPrefix = "truthscore:"

// ScoreCache caches computed TruthScores per wallet.
type ScoreCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// New connects to Redis. A failed ping is returned as an error; callers may
// choose to run without the cache.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration, logger zerolog.Logger) (*ScoreCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ScoreCache{
		client: client,
		ttl:    ttl,
		log:    logger.With().Str("component", "cache").Logger(),
	}, nil
}

// Get returns the cached score for a wallet, ok=false on miss.
func (c *ScoreCache) Get(ctx context.Context, address string) (models.TruthScore, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+address).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Str("address", address).Msg("cache read failed")
		}
		return models.TruthScore{}, false
	}

	var score models.TruthScore
	if err := json.Unmarshal(raw, &score); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		c.client.Del(ctx, keyPrefix+address)
		return models.TruthScore{}, false
	}
	return score, true
}

// Set stores a computed score with the configured TTL.
func (c *ScoreCache) Set(ctx context.Context, score models.TruthScore) {
	raw, err := json.Marshal(score)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal score")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+score.Address, raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("address", score.Address).Msg("cache write failed")
	}
}

// Invalidate evicts a wallet's cached score, used when new resolved bets
// change the underlying aggregate.
func (c *ScoreCache) Invalidate(ctx context.Context, address string) {
	c.client.Del(ctx, keyPrefix+address)
}

// Close releases the Redis connection.
func (c *ScoreCache) Close() error {
	return c.client.Close()
}

package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ualgo/engine/internal/indicators"
	"github.com/ualgo/engine/internal/metrics"
)

const redisCandleTTL = 60 * time.Second

// RedisCandleCache is a read-through layer in front of a CandleSource.
// Hits are served from Redis; misses fall through and are written back
// asynchronously so the hot path never blocks on the cache.
type RedisCandleCache struct {
	inner  CandleSource
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisCandleCache wraps a candle source with a Redis cache
func NewRedisCandleCache(inner CandleSource, client *redis.Client, logger zerolog.Logger) *RedisCandleCache {
	return &RedisCandleCache{
		inner:  inner,
		client: client,
		logger: logger,
	}
}

// GetRecentCandles serves from Redis when possible
func (c *RedisCandleCache) GetRecentCandles(ctx context.Context, symbol, interval string, limit int) []indicators.Candle {
	if limit <= 0 {
		limit = 100
	}
	key := fmt.Sprintf("candles:%s:%s", symbol, interval)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var candles []indicators.Candle
		if err := json.Unmarshal(data, &candles); err == nil && len(candles) >= limit {
			metrics.CandleCacheHits.Inc()
			return candles[len(candles)-limit:]
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Str("key", key).Msg("Redis candle read failed")
	}

	metrics.CandleCacheMisses.Inc()
	candles := c.inner.GetRecentCandles(ctx, symbol, interval, limit)
	if len(candles) > 0 {
		c.writeBack(key, candles)
	}
	return candles
}

func (c *RedisCandleCache) writeBack(key string, candles []indicators.Candle) {
	payload, err := json.Marshal(candles)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to marshal candles for cache")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Set(ctx, key, payload, redisCandleTTL).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("Redis candle write failed")
		}
	}()
}

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/trackledger/trackledger/internal/ladder"
)

// ThresholdSource serves the operator-tunable ladder threshold table.
// Ladder reads are request-time and never sit on the append path, so a
// short-TTL cache only delays a public rating change; it can never corrupt
// a chain.
type ThresholdSource interface {
	Thresholds(ctx context.Context) (ladder.Thresholds, error)
}

// StaticThresholds serves a fixed table, typically the one loaded from YAML
// at startup.
type StaticThresholds struct {
	Table ladder.Thresholds
}

func (s StaticThresholds) Thresholds(context.Context) (ladder.Thresholds, error) {
	return s.Table, nil
}

// RedisThresholdCache fronts another source with a redis-held copy so
// multiple instances converge on admin edits within one TTL. Cache failures
// degrade to the underlying source, never to an error.
type RedisThresholdCache struct {
	rdb  *redis.Client
	next ThresholdSource
	ttl  time.Duration
	key  string
}

func NewRedisThresholdCache(rdb *redis.Client, next ThresholdSource, ttl time.Duration) *RedisThresholdCache {
	return &RedisThresholdCache{
		rdb:  rdb,
		next: next,
		ttl:  ttl,
		key:  "trackledger:ladder:thresholds",
	}
}

func (c *RedisThresholdCache) Thresholds(ctx context.Context) (ladder.Thresholds, error) {
	raw, err := c.rdb.Get(ctx, c.key).Result()
	if err == nil {
		var t ladder.Thresholds
		if err := json.Unmarshal([]byte(raw), &t); err == nil {
			return t, nil
		}
		log.Warn().Str("key", c.key).Msg("unreadable cached thresholds, reloading")
	} else if err != redis.Nil {
		log.Warn().Err(err).Msg("threshold cache read failed, falling back")
	}

	t, err := c.next.Thresholds(ctx)
	if err != nil {
		return ladder.Thresholds{}, fmt.Errorf("load thresholds: %w", err)
	}

	if data, err := json.Marshal(t); err == nil {
		if err := c.rdb.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("threshold cache write failed")
		}
	}
	return t, nil
}

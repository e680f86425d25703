// Package cache keeps resolved availability in Redis. Every professional has
// a version counter embedded in the data keys; any schedule write bumps it,
// which orphans the old entries at once and lets TTL reclaim them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/redis/go-redis/v9"
)

type Redis struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedis(rdb redis.UniversalClient, ttl time.Duration, prefix string) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if prefix == "" {
		prefix = "clinicsched:avail"
	}
	return &Redis{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *Redis) versionKey(professionalID string) string {
	return c.prefix + ":ver:" + professionalID
}

func (c *Redis) dataKey(professionalID string, version int64, date civil.Date) string {
	return fmt.Sprintf("%s:%s:%d:%s", c.prefix, professionalID, version, date)
}

// Version must be read before the snapshot that feeds Set, so an
// invalidation racing the read can only strand data under an old version.
func (c *Redis) Version(ctx context.Context, professionalID string) (int64, error) {
	v, err := c.rdb.Get(ctx, c.versionKey(professionalID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// GetMany returns the cached days among dates; missing days are absent from
// the map.
func (c *Redis) GetMany(ctx context.Context, professionalID string, version int64, dates []civil.Date) (map[civil.Date][]model.ResolvedSlot, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = c.dataKey(professionalID, version, d)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[civil.Date][]model.ResolvedSlot, len(dates))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var slots []model.ResolvedSlot
		if err := json.Unmarshal([]byte(s), &slots); err != nil {
			continue
		}
		out[dates[i]] = slots
	}
	return out, nil
}

func (c *Redis) SetMany(ctx context.Context, professionalID string, version int64, days map[civil.Date][]model.ResolvedSlot) error {
	if len(days) == 0 {
		return nil
	}
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for d, slots := range days {
			if slots == nil {
				slots = []model.ResolvedSlot{}
			}
			raw, err := json.Marshal(slots)
			if err != nil {
				return err
			}
			p.Set(ctx, c.dataKey(professionalID, version, d), raw, c.ttl)
		}
		return nil
	})
	return err
}

func (c *Redis) Invalidate(ctx context.Context, professionalID string) error {
	return c.rdb.Incr(ctx, c.versionKey(professionalID)).Err()
}

func ReadyCheck(rdb redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}

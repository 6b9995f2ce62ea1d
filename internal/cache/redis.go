package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tipping-analytics/internal/models"
)

const (
	lbKey          = "leaderboard:top"
	lbEntriesKey   = "leaderboard:entries"
	lbPopulatedKey = "leaderboard:populated"
)

// Redis caches ranked leaderboard entries in a sorted set keyed by ranking
// value, with the full entry bodies in a side hash.
type Redis struct {
	cli *redis.Client
	ttl time.Duration
}

func NewRedis(addr string, db int, ttl time.Duration) *Redis {
	cli := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &Redis{cli: cli, ttl: ttl}
}

func (r *Redis) Close() error { return r.cli.Close() }

func (r *Redis) GetLeaderboard(ctx context.Context, limit int) ([]models.TipperStats, bool, error) {
	populated, err := r.cli.Get(ctx, lbPopulatedKey).Int()
	if err != nil || populated <= 0 {
		return nil, false, nil
	}

	addrs, err := r.cli.ZRevRange(ctx, lbKey, 0, int64(limit-1)).Result()
	if err != nil || len(addrs) == 0 {
		return nil, false, nil
	}
	// a board truncated at its populated size cannot serve a wider request
	if limit > populated && len(addrs) >= populated {
		return nil, false, nil
	}

	raw, err := r.cli.HMGet(ctx, lbEntriesKey, addrs...).Result()
	if err != nil {
		return nil, false, nil
	}

	entries := make([]models.TipperStats, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			// entry hash expired out from under the sorted set
			return nil, false, nil
		}
		var entry models.TipperStats
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			return nil, false, nil
		}
		entries = append(entries, entry)
	}
	return entries, true, nil
}

func (r *Redis) SetLeaderboard(ctx context.Context, entries []models.TipperStats, populatedFor int) error {
	pipe := r.cli.TxPipeline()
	pipe.Del(ctx, lbKey, lbEntriesKey, lbPopulatedKey)
	if len(entries) > 0 {
		zs := make([]redis.Z, 0, len(entries))
		bodies := make(map[string]interface{}, len(entries))
		for _, entry := range entries {
			body, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			score, _ := entry.RankingValue.Float64()
			zs = append(zs, redis.Z{Member: entry.Address, Score: score})
			bodies[entry.Address] = body
		}
		pipe.ZAdd(ctx, lbKey, zs...)
		pipe.HSet(ctx, lbEntriesKey, bodies)
	}
	pipe.Set(ctx, lbPopulatedKey, populatedFor, r.ttl)
	pipe.Expire(ctx, lbKey, r.ttl)
	pipe.Expire(ctx, lbEntriesKey, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

package traveltime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "shootday:travel:"

// putIfNewer writes the hash unless the stored computed_at is later.
// KEYS[1] key; ARGV computed_at_ms, minutes, status, ttl_ms.
var putIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'computed_at')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'computed_at', ARGV[1], 'minutes', ARGV[2], 'status', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// RedisStore shares entries between the API and the worker.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	fields, err := r.client.HGetAll(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Entry{}, false, nil
	}
	ms, err := strconv.ParseInt(fields["computed_at"], 10, 64)
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis entry %s: computed_at: %w", key, err)
	}
	minutes, err := strconv.Atoi(fields["minutes"])
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis entry %s: minutes: %w", key, err)
	}
	return Entry{
		Minutes:    minutes,
		ComputedAt: time.UnixMilli(ms),
		Status:     Status(fields["status"]),
	}, true, nil
}

func (r *RedisStore) PutIfNewer(ctx context.Context, key string, e Entry, ttl time.Duration) (bool, error) {
	n, err := putIfNewer.Run(ctx, r.client, []string{redisKeyPrefix + key},
		e.ComputedAt.UnixMilli(), e.Minutes, string(e.Status), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis put %s: %w", key, err)
	}
	return n == 1, nil
}

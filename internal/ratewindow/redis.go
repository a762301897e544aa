package ratewindow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript appends, counts and trims in one round trip.
// KEYS[1] = window key
// ARGV[1] = event time (ms), ARGV[2] = span (ms), ARGV[3] = unique member
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local span = tonumber(ARGV[2])
local member = ARGV[3]

redis.call("ZADD", key, now, member)
local count = redis.call("ZCOUNT", key, "(" .. (now - span), now)
local newest = redis.call("ZRANGE", key, -1, -1, "WITHSCORES")
local top = tonumber(newest[2])
redis.call("ZREMRANGEBYSCORE", key, "-inf", top - span)
redis.call("PEXPIRE", key, span)
return count
`)

// RedisTracker shares windows across bot instances. Keys expire on their own,
// so Sweep is a no-op.
type RedisTracker struct {
	client redis.UniversalClient
	prefix string
}

var _ Tracker = (*RedisTracker)(nil)

func NewRedisTracker(client redis.UniversalClient, prefix string) *RedisTracker {
	if prefix == "" {
		prefix = "guildwarden:ratewindow"
	}
	return &RedisTracker{client: client, prefix: prefix}
}

func (t *RedisTracker) Record(ctx context.Context, guildID, userID string, at time.Time, span time.Duration, max int) (Result, error) {
	count, err := slidingWindowScript.Run(ctx, t.client,
		[]string{t.key(guildID, userID)},
		at.UnixMilli(), span.Milliseconds(), uuid.NewString(),
	).Int()
	if err != nil {
		return Result{}, fmt.Errorf("redis sliding window: %w", err)
	}
	return Result{WithinLimit: count <= max, Count: count}, nil
}

func (t *RedisTracker) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (t *RedisTracker) key(guildID, userID string) string {
	return t.prefix + ":" + Key(guildID, userID)
}

// Connect opens a client and checks it with a bounded ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

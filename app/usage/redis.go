package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters outlive their month by a few weeks so late reads still resolve.
const redisCounterTTL = 62 * 24 * time.Hour

var incrementScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisStore keeps one INCR counter per user and month.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "tickrify:usage"
	}
	return &RedisStore{client: client, prefix: trimmed}
}

func (r *RedisStore) key(userID, monthKey string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, userID, monthKey)
}

func (r *RedisStore) Read(ctx context.Context, userID, monthKey string) (int, error) {
	n, err := r.client.Get(ctx, r.key(userID, monthKey)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *RedisStore) Increment(ctx context.Context, userID, monthKey string) (int, error) {
	raw, err := incrementScript.Run(ctx, r.client, []string{r.key(userID, monthKey)}, redisCounterTTL.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	n, ok := raw.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected redis counter type: %T", raw)
	}
	return int(n), nil
}

package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultIdempotencyTTL = 24 * time.Hour

	// DefaultClaimTTL bounds how long an unfinished claim blocks replays of
	// the same mutation. Completed results keep the full ledger TTL.
	DefaultClaimTTL = 5 * time.Minute

	// pendingMarker is stored while the first delivery of a mutation is
	// still being applied. Stored results are JSON objects, never this value.
	pendingMarker = "pending"
)

// claimScript returns the stored value of KEYS[1] or, when the key is
// absent, stores the pending marker with a TTL and returns nil.
var claimScript = redis.NewScript(`
local key = KEYS[1]
local current = redis.call('GET', key)
if current then
	return current
end

redis.call('SET', key, ARGV[1], 'PX', ARGV[2])
return false
`)

// RedisLedger is the idempotency ledger backed by Redis.
type RedisLedger struct {
	client   *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
}

func NewRedisLedger(client *redis.Client, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &RedisLedger{client: client, ttl: ttl, claimTTL: min(ttl, DefaultClaimTTL)}
}

func (r *RedisLedger) Claim(ctx context.Context, key string) (bool, []byte, error) {
	current, err := claimScript.Run(ctx, r.client, []string{key}, pendingMarker, r.claimTTL.Milliseconds()).Text()
	if errors.Is(err, redis.Nil) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}

	if current == pendingMarker {
		return false, nil, nil
	}
	return false, []byte(current), nil
}

func (r *RedisLedger) Complete(ctx context.Context, key string, result []byte) error {
	return r.client.Set(ctx, key, result, r.ttl).Err()
}

func (r *RedisLedger) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release the lock only if we still hold it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lock is a single-holder Redis lock (SET NX PX with a compare-and-delete release).
type Lock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewLock(rdb *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{rdb: rdb, key: key, ttl: ttl}
}

// TryAcquire returns ok=false without error when another holder owns the key.
// The returned release func reports whether the key was still ours.
func (l *Lock) TryAcquire(ctx context.Context) (release func(context.Context) (bool, error), ok bool, err error) {
	value := uuid.NewString()
	ok, err = l.rdb.SetNX(ctx, l.key, value, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func(ctx context.Context) (bool, error) {
		deleted, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, value).Int64()
		if err != nil {
			return false, fmt.Errorf("release lock %s: %w", l.key, err)
		}
		return deleted == 1, nil
	}
	return release, true, nil
}

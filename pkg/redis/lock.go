package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned by Acquire when another holder owns the key.
var ErrLockHeld = errors.New("redis: lock is held by another owner")

// releaseScript deletes the key only if it still carries our token, so an
// expired lock taken over by another replica is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out single-holder leases on keys.
type Locker struct {
	rdb goredis.UniversalClient
}

func NewLocker(rdb goredis.UniversalClient) *Locker {
	return &Locker{rdb: rdb}
}

// Lock is a held lease. Release it when done; it also expires after the TTL.
type Lock struct {
	rdb   goredis.UniversalClient
	key   string
	token string
}

// Acquire takes key for ttl with SET NX.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{rdb: l.rdb, key: key, token: token}, nil
}

// Release deletes the key if this lock still owns it. It reports whether
// the key was deleted.
func (k *Lock) Release(ctx context.Context) (bool, error) {
	n, err := releaseScript.Run(ctx, k.rdb, []string{k.key}, k.token).Int()
	if err != nil {
		return false, fmt.Errorf("redis: release %s: %w", k.key, err)
	}
	return n == 1, nil
}

func (k *Lock) Key() string { return k.key }

package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Leaser hands out short-lived, per-key ownership across instances.
type Leaser interface {
	// Acquire reports whether this instance owns key for the next ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release gives up key if this instance still owns it.
	Release(ctx context.Context, key string) error
}

// Nop grants every lease. Used when a single instance ticks.
type Nop struct{}

func (Nop) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (Nop) Release(context.Context, string) error { return nil }

// RedisLeaser implements Leaser with SET NX PX. A holder that asks again
// before expiry keeps the lease and has its ttl extended.
type RedisLeaser struct {
	rdb    redis.UniversalClient
	owner  string
	prefix string
}

// NewRedisLeaser creates a leaser. An empty owner gets a random one.
func NewRedisLeaser(rdb redis.UniversalClient, prefix, owner string) *RedisLeaser {
	if owner == "" {
		owner = uuid.New().String()[:8]
	}
	return &RedisLeaser{rdb: rdb, owner: owner, prefix: prefix}
}

// Owner returns the identity written into held keys.
func (l *RedisLeaser) Owner() string {
	return l.owner
}

func (l *RedisLeaser) key(k string) string {
	return l.prefix + k
}

func (l *RedisLeaser) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k := l.key(key)
	ok, err := l.rdb.SetNX(ctx, k, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", k, err)
	}
	if ok {
		return true, nil
	}

	// Someone holds it; extend when that someone is us.
	extended := false
	err = l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			return redis.TxFailedErr
		}
		if err != nil {
			return err
		}
		if holder != l.owner {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.PExpire(ctx, k, ttl)
			return nil
		})
		if err == nil {
			extended = true
		}
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		// Expired or changed hands between SETNX and WATCH; try once more.
		ok, err := l.rdb.SetNX(ctx, k, l.owner, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("acquire lease %s: %w", k, err)
		}
		return ok, nil
	}
	if err != nil {
		return false, fmt.Errorf("extend lease %s: %w", k, err)
	}
	return extended, nil
}

func (l *RedisLeaser) Release(ctx context.Context, key string) error {
	k := l.key(key)
	err := l.rdb.Watch(ctx, func(tx *redis.Tx) error {
		holder, err := tx.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if holder != l.owner {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("release lease %s: %w", k, err)
	}
	return nil
}

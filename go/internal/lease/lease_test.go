package lease

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisLeaserSingleOwner(t *testing.T) {
	_, rdb := newTestClient(t)
	ctx := context.Background()

	a := NewRedisLeaser(rdb, "clock:tick:", "instance-a")
	b := NewRedisLeaser(rdb, "clock:tick:", "instance-b")

	ok, err := a.Acquire(ctx, "t1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, "t1", time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second instance must not take a held lease")

	ok, err = b.Acquire(ctx, "t2", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "leases are per key")
}

func TestRedisLeaserHolderExtends(t *testing.T) {
	mr, rdb := newTestClient(t)
	ctx := context.Background()

	a := NewRedisLeaser(rdb, "clock:tick:", "instance-a")

	ok, err := a.Acquire(ctx, "t1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(800 * time.Millisecond)
	ok, err = a.Acquire(ctx, "t1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(800 * time.Millisecond)
	assert.True(t, mr.Exists("clock:tick:t1"), "ttl should have been extended")
	holder, err := mr.Get("clock:tick:t1")
	require.NoError(t, err)
	assert.Equal(t, "instance-a", holder)
}

func TestRedisLeaserExpiryHandsOver(t *testing.T) {
	mr, rdb := newTestClient(t)
	ctx := context.Background()

	a := NewRedisLeaser(rdb, "lease:", "instance-a")
	b := NewRedisLeaser(rdb, "lease:", "instance-b")

	ok, err := a.Acquire(ctx, "t1", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	ok, err = b.Acquire(ctx, "t1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLeaserReleaseOnlyOwn(t *testing.T) {
	mr, rdb := newTestClient(t)
	ctx := context.Background()

	a := NewRedisLeaser(rdb, "lease:", "instance-a")
	b := NewRedisLeaser(rdb, "lease:", "instance-b")

	ok, err := a.Acquire(ctx, "t1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Release(ctx, "t1"))
	assert.True(t, mr.Exists("lease:t1"), "non-owner release must be ignored")

	require.NoError(t, a.Release(ctx, "t1"))
	assert.False(t, mr.Exists("lease:t1"))

	require.NoError(t, a.Release(ctx, "missing"))
}

func TestNopLeaserAlwaysGrants(t *testing.T) {
	ok, err := Nop{}.Acquire(context.Background(), "any", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, Nop{}.Release(context.Background(), "any"))
}

func TestNewRedisLeaserDefaultsOwner(t *testing.T) {
	_, rdb := newTestClient(t)
	l := NewRedisLeaser(rdb, "", "")
	assert.Len(t, l.Owner(), 8)
}

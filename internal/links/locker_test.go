package links

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	l := NewRedisLocker(rdb, 5*time.Second)
	l.retry = redislock.NoRetry()
	ctx := context.Background()

	release, err := l.Lock(ctx, "links:regenerate:job-1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "links:regenerate:job-1")
	assert.ErrorIs(t, err, ErrBusy)

	other, err := l.Lock(ctx, "links:regenerate:job-2")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := l.Lock(ctx, "links:regenerate:job-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRegenerate_BusyLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	locker := NewRedisLocker(rdb, 5*time.Second)
	locker.retry = redislock.NoRetry()

	f := newLinkFixture(t)
	f.mgr.locker = locker
	ctx := context.Background()

	release, err := locker.Lock(ctx, "links:regenerate:job-1")
	require.NoError(t, err)
	_, err = f.mgr.Regenerate(ctx, IssueRequest{JobID: "job-1", WorkspaceID: "ws"})
	assert.ErrorIs(t, err, ErrBusy)
	require.NoError(t, release(ctx))

	_, err = f.mgr.Regenerate(ctx, IssueRequest{JobID: "job-1", WorkspaceID: "ws"})
	require.NoError(t, err)
}

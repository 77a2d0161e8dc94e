package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billstate/billstate/pkg/lock"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	t.Parallel()

	srv, client := newRedisClient(t)
	locker := lock.NewRedisLocker(client, time.Second, 5*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "sub_1")
	require.NoError(t, err)
	assert.True(t, srv.Exists("lock:sub_1"))

	release()
	assert.False(t, srv.Exists("lock:sub_1"))
}

func TestRedisLocker_BlocksUntilReleased(t *testing.T) {
	t.Parallel()

	_, client := newRedisClient(t)
	locker := lock.NewRedisLocker(client, time.Second, 5*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "sub_1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		second, err := locker.Acquire(ctx, "sub_1")
		assert.NoError(t, err)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}

func TestRedisLocker_ContextCancelWhileWaiting(t *testing.T) {
	t.Parallel()

	_, client := newRedisClient(t)
	locker := lock.NewRedisLocker(client, time.Second, 5*time.Millisecond)

	release, err := locker.Acquire(context.Background(), "sub_1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, "sub_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLocker_ReleaseOnlyOwnToken(t *testing.T) {
	t.Parallel()

	srv, client := newRedisClient(t)
	locker := lock.NewRedisLocker(client, 50*time.Millisecond, 5*time.Millisecond)
	ctx := context.Background()

	staleRelease, err := locker.Acquire(ctx, "sub_1")
	require.NoError(t, err)

	// TTL expires, another holder takes the key
	srv.FastForward(100 * time.Millisecond)
	release, err := locker.Acquire(ctx, "sub_1")
	require.NoError(t, err)
	defer release()

	// the stale holder must not delete the new holder's lock
	staleRelease()
	assert.True(t, srv.Exists("lock:sub_1"))
}

func TestRedisLocker_BackendDown(t *testing.T) {
	t.Parallel()

	srv, client := newRedisClient(t)
	locker := lock.NewRedisLocker(client, time.Second, 5*time.Millisecond)
	srv.Close()

	_, err := locker.Acquire(context.Background(), "sub_1")
	assert.ErrorIs(t, err, lock.ErrBackendUnavailable)
}

package lock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billstate/billstate/pkg/lock"
)

func TestKeyedMutex_Exclusion(t *testing.T) {
	t.Parallel()

	m := lock.NewKeyedMutex()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
	)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(ctx, "sub_1")
			require.NoError(t, err)

			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "more than one goroutine held the same key")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	t.Parallel()

	m := lock.NewKeyedMutex()
	ctx := context.Background()

	releaseA, err := m.Acquire(ctx, "sub_a")
	require.NoError(t, err)
	defer releaseA()

	// a different key must not block
	done := make(chan struct{})
	go func() {
		defer close(done)
		releaseB, err := m.Acquire(ctx, "sub_b")
		assert.NoError(t, err)
		releaseB()
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked on an unrelated holder")
	}
}

func TestKeyedMutex_ContextCancel(t *testing.T) {
	t.Parallel()

	m := lock.NewKeyedMutex()

	release, err := m.Acquire(context.Background(), "sub_1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, "sub_1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

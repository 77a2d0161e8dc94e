package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billstate/billstate/pkg/billing"
)

func TestStatusHub(t *testing.T) {
	t.Parallel()

	change := billing.StatusChange{
		SubscriptionID: uuid.New(),
		AccountID:      uuid.New(),
		ProviderSubID:  "sub_hub",
		From:           billing.StatusAuthenticated,
		To:             billing.StatusActive,
		OccurredAt:     time.Unix(100, 0).UTC(),
	}

	t.Run("delivers to all subscribers", func(t *testing.T) {
		t.Parallel()
		hub := billing.NewStatusHub(4)
		defer hub.Close()

		ctx := context.Background()
		a := hub.Subscribe(ctx)
		b := hub.Subscribe(ctx)

		hub.NotifyStatusChange(ctx, change)

		for _, ch := range []<-chan billing.StatusChange{a, b} {
			select {
			case got := <-ch:
				assert.Equal(t, change, got)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for status change")
			}
		}
	})

	t.Run("drops instead of blocking on a full buffer", func(t *testing.T) {
		t.Parallel()
		hub := billing.NewStatusHub(1)
		defer hub.Close()

		ctx := context.Background()
		ch := hub.Subscribe(ctx)

		done := make(chan struct{})
		go func() {
			defer close(done)
			hub.NotifyStatusChange(ctx, change)
			hub.NotifyStatusChange(ctx, change) // buffer full, must not block
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("notify blocked on a slow consumer")
		}
		assert.Len(t, ch, 1)
	})

	t.Run("close closes subscriber channels", func(t *testing.T) {
		t.Parallel()
		hub := billing.NewStatusHub(1)
		ch := hub.Subscribe(context.Background())

		hub.Close()

		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel not closed")
		}

		// notifying a closed hub is a no-op
		hub.NotifyStatusChange(context.Background(), change)
	})

	t.Run("context cancel removes the subscription", func(t *testing.T) {
		t.Parallel()
		hub := billing.NewStatusHub(1)
		defer hub.Close()

		ctx, cancel := context.WithCancel(context.Background())
		ch := hub.Subscribe(ctx)
		cancel()

		require.Eventually(t, func() bool {
			select {
			case _, ok := <-ch:
				return !ok
			default:
				return false
			}
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("subscribing to a closed hub returns a closed channel", func(t *testing.T) {
		t.Parallel()
		hub := billing.NewStatusHub(1)
		hub.Close()

		ch := hub.Subscribe(context.Background())
		_, ok := <-ch
		assert.False(t, ok)
	})
}

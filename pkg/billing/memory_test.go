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

func TestMemorySubscriptionRepository_LiveUniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newSub := func(accountID uuid.UUID, providerSubID string, status billing.Status) *billing.Subscription {
		return &billing.Subscription{
			ID:            uuid.New(),
			AccountID:     accountID,
			PlanID:        uuid.New(),
			ProviderSubID: providerSubID,
			Status:        status,
			StartDate:     time.Unix(1, 0).UTC(),
		}
	}

	t.Run("second live subscription for an account is refused", func(t *testing.T) {
		t.Parallel()
		repo := billing.NewMemorySubscriptionRepository()
		accountID := uuid.New()

		require.NoError(t, repo.Create(ctx, newSub(accountID, "sub_live_1", billing.StatusActive)))

		err := repo.Create(ctx, newSub(accountID, "sub_live_2", billing.StatusAuthenticated))
		assert.ErrorIs(t, err, billing.ErrSubscriptionAlreadyExists)
	})

	t.Run("non-live statuses coexist", func(t *testing.T) {
		t.Parallel()
		repo := billing.NewMemorySubscriptionRepository()
		accountID := uuid.New()

		require.NoError(t, repo.Create(ctx, newSub(accountID, "sub_old", billing.StatusCancelled)))
		require.NoError(t, repo.Create(ctx, newSub(accountID, "sub_new", billing.StatusActive)))
		require.NoError(t, repo.Create(ctx, newSub(accountID, "sub_pending", billing.StatusCreated)))
	})

	t.Run("different accounts are independent", func(t *testing.T) {
		t.Parallel()
		repo := billing.NewMemorySubscriptionRepository()

		require.NoError(t, repo.Create(ctx, newSub(uuid.New(), "sub_a", billing.StatusActive)))
		require.NoError(t, repo.Create(ctx, newSub(uuid.New(), "sub_b", billing.StatusActive)))
	})
}

package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpdateFields is the partial update applied when a status change commits.
// Nil pointer fields are left untouched by the repository. Status moves
// only through CanTransition; a repository write that bypasses the check is
// a correctness bug, which is why the repository takes the fields rather
// than a whole record.
type UpdateFields struct {
	Status         Status
	RemainingCount *int
	PaidCount      *int
	TotalCount     *int
	StartDate      *time.Time
	EndDate        *time.Time
	CurrentStart   *time.Time
	CurrentEnd     *time.Time
	ChargeAt       *time.Time
	CancelledAt    *time.Time
	UpdatedAt      time.Time // gateway event timestamp, drives relevance
	Notes          map[string]string
	ShortURL       *string
}

// SubscriptionRepository is the persistence port for subscription records.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error

	// FindByProviderSubID returns ErrSubscriptionNotFound when the gateway
	// id is unknown.
	FindByProviderSubID(ctx context.Context, providerSubID string) (*Subscription, error)

	// Update applies fields to the record identified by providerSubID, but
	// only while its status still equals expectedStatus. Returns
	// ErrUpdateConflict when the conditional write matched no row, so the
	// caller can re-read and decide again. This is the lost-update guard
	// between the relevance check and the write.
	Update(ctx context.Context, providerSubID string, expectedStatus Status, fields UpdateFields) (*Subscription, error)

	// FindActiveForAccount returns the account's subscription in active or
	// authenticated status, or ErrSubscriptionNotFound.
	FindActiveForAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// FindLatestForAccount returns the account's most recent subscription
	// regardless of status. Terminal subscriptions are retained for audit,
	// and the consistency sweep derives the expected projection from them.
	FindLatestForAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	CountActiveByPlan(ctx context.Context, planID uuid.UUID) (int64, error)
}

// AccountRef pairs an account with its current projection pointer, for the
// consistency sweep.
type AccountRef struct {
	AccountID            uuid.UUID
	ActiveSubscriptionID *uuid.UUID
}

// AccountProjection maintains the denormalized active-subscription pointer
// on account records. The pointer is derived state reconciled
// opportunistically, not a hard invariant: a failed projection write leaves
// a correct subscription record and a stale pointer, which the sweep
// repairs.
type AccountProjection interface {
	// SetActiveSubscription writes the pointer; nil clears it.
	SetActiveSubscription(ctx context.Context, accountID uuid.UUID, id *uuid.UUID) error

	// ListRefs returns every account's current pointer for the sweep.
	ListRefs(ctx context.Context) ([]AccountRef, error)
}

package billing

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is the persisted record reconciled against gateway
// notifications. Each account has at most one subscription in active or
// authenticated status at a time; that invariant is enforced by the
// subscribe flow and relied upon everywhere else.
type Subscription struct {
	ID            uuid.UUID
	AccountID     uuid.UUID
	PlanID        uuid.UUID // internal plan id, not the gateway's
	ProviderSubID string    // gateway's subscription id, immutable once set
	Status        Status

	RemainingCount int
	PaidCount      int
	TotalCount     int

	StartDate    time.Time
	EndDate      *time.Time
	CurrentStart *time.Time // active billing-cycle window
	CurrentEnd   *time.Time
	ChargeAt     *time.Time // next scheduled charge
	CancelledAt  *time.Time

	// UpdatedAt carries the gateway's event timestamp once any notification
	// has been applied, not the wall clock of the local write. The relevance
	// filter orders events against it.
	UpdatedAt time.Time

	// Amount is snapshotted from the plan at creation time and is not
	// recomputed if the plan later changes price.
	Amount Money

	Notes    map[string]string // opaque gateway metadata, stored verbatim
	ShortURL string
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// IsCancellable reports whether a user-initiated cancel is permitted.
func (s *Subscription) IsCancellable() bool {
	return s.Status == StatusActive || s.Status == StatusAuthenticated
}

// LastAppliedAt returns the ordering timestamp for the relevance filter, or
// nil when no notification has ever been applied.
func (s *Subscription) LastAppliedAt() *time.Time {
	if s.UpdatedAt.IsZero() {
		return nil
	}
	t := s.UpdatedAt
	return &t
}

package billing

import (
	"context"

	"github.com/google/uuid"
)

// Plan describes a billing tier. Plans are read-only from the reconciliation
// core's perspective; the subscribe flow snapshots Price into the
// subscription's Amount and never looks back.
type Plan struct {
	ID             uuid.UUID
	ProviderPlanID string // gateway's plan id used when subscribing
	Name           string
	Type           PlanType
	Price          Money
	Interval       BillingInterval
	Period         int // number of intervals per billing cycle
	Features       []string
	Limits         map[string]int64 // -1 represents unlimited
	IsActive       bool
}

// IsFree reports whether the plan carries no billing.
func (p Plan) IsFree() bool {
	return p.Type == PlanTypeFree
}

// PlanStore looks up plans for the projection updater and the subscribe flow.
type PlanStore interface {
	// FindByID returns ErrPlanNotFound when no plan has the given id.
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)

	// FindDefaultFree returns the currently active free plan used as the
	// fallback tier for expired subscriptions. Returns
	// ErrDefaultPlanNotFound when none is configured.
	FindDefaultFree(ctx context.Context) (*Plan, error)
}

// PlanSource loads the plan catalog at startup.
type PlanSource interface {
	Load(ctx context.Context) ([]Plan, error)
}

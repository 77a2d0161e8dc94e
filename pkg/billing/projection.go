package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ProjectionUpdater keeps the account's active-subscription pointer in sync
// with the latest committed subscription status. It runs after the status
// write: the subscription record is authoritative, the pointer is a cache.
type ProjectionUpdater struct {
	plans    PlanStore
	accounts AccountProjection
	log      *slog.Logger
}

func NewProjectionUpdater(plans PlanStore, accounts AccountProjection, log *slog.Logger) *ProjectionUpdater {
	if plans == nil {
		panic("billing: PlanStore is required")
	}
	if accounts == nil {
		panic("billing: AccountProjection is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProjectionUpdater{plans: plans, accounts: accounts, log: log}
}

// Apply synchronizes the pointer for a committed status change:
//
//   - active: the subscription must reference a real plan (ErrPlanNotFound
//     otherwise — an active subscription without a plan is a configuration
//     error); the pointer is set to the subscription id.
//   - expired: the account falls back to the currently active free plan;
//     a missing free plan is surfaced as ErrDefaultPlanNotFound, never
//     swallowed.
//   - anything else: the pointer is cleared.
//
// A failed pointer write leaves the subscription record correct and the
// projection stale; callers acknowledge and rely on the sweep to repair it.
func (p *ProjectionUpdater) Apply(ctx context.Context, sub *Subscription) error {
	switch sub.Status {
	case StatusActive:
		if _, err := p.plans.FindByID(ctx, sub.PlanID); err != nil {
			if errors.Is(err, ErrPlanNotFound) {
				return fmt.Errorf("%w: plan %s for active subscription %s", ErrPlanNotFound, sub.PlanID, sub.ID)
			}
			return err
		}
		id := sub.ID
		if err := p.accounts.SetActiveSubscription(ctx, sub.AccountID, &id); err != nil {
			return errors.Join(ErrProjectionWrite, err)
		}

	case StatusExpired:
		free, err := p.plans.FindDefaultFree(ctx)
		if err != nil {
			return err
		}
		id := free.ID
		if err := p.accounts.SetActiveSubscription(ctx, sub.AccountID, &id); err != nil {
			return errors.Join(ErrProjectionWrite, err)
		}
		p.log.InfoContext(ctx, "account switched to default free plan",
			slog.String("account_id", sub.AccountID.String()),
			slog.String("plan_id", free.ID.String()))

	default:
		if err := p.accounts.SetActiveSubscription(ctx, sub.AccountID, nil); err != nil {
			return errors.Join(ErrProjectionWrite, err)
		}
	}

	return nil
}

// Expected computes the pointer value the projection should hold for a
// given subscription, using the same rules as Apply without writing
// anything, including the plan checks. The sweep compares it against the
// stored pointer.
func (p *ProjectionUpdater) Expected(ctx context.Context, sub *Subscription) (*uuid.UUID, error) {
	switch sub.Status {
	case StatusActive:
		if _, err := p.plans.FindByID(ctx, sub.PlanID); err != nil {
			if errors.Is(err, ErrPlanNotFound) {
				return nil, fmt.Errorf("%w: plan %s for active subscription %s", ErrPlanNotFound, sub.PlanID, sub.ID)
			}
			return nil, err
		}
		id := sub.ID
		return &id, nil
	case StatusExpired:
		free, err := p.plans.FindDefaultFree(ctx)
		if err != nil {
			return nil, err
		}
		id := free.ID
		return &id, nil
	default:
		return nil, nil
	}
}

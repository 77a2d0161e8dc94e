package billing

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySubscriptionRepository is an in-memory SubscriptionRepository for
// tests and single-process setups. Conditional update semantics match the
// SQL implementation, including ErrUpdateConflict on a status mismatch.
type MemorySubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[string]*Subscription // keyed by provider sub id
}

func NewMemorySubscriptionRepository() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{subs: make(map[string]*Subscription)}
}

func (r *MemorySubscriptionRepository) Create(_ context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sub.ProviderSubID
	if key == "" {
		// Free-plan subscriptions never get a gateway id; key them locally.
		key = "local:" + sub.ID.String()
	}
	if _, exists := r.subs[key]; exists {
		return ErrSubscriptionAlreadyExists
	}
	// At most one live subscription per account, matching the partial
	// unique index the SQL repository sits on.
	if sub.Status == StatusActive || sub.Status == StatusAuthenticated {
		for _, existing := range r.subs {
			if existing.AccountID == sub.AccountID &&
				(existing.Status == StatusActive || existing.Status == StatusAuthenticated) {
				return ErrSubscriptionAlreadyExists
			}
		}
	}
	cp := cloneSubscription(sub)
	r.subs[key] = cp
	return nil
}

func (r *MemorySubscriptionRepository) FindByProviderSubID(_ context.Context, providerSubID string) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[providerSubID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

func (r *MemorySubscriptionRepository) Update(_ context.Context, providerSubID string, expectedStatus Status, fields UpdateFields) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[providerSubID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if sub.Status != expectedStatus {
		return nil, ErrUpdateConflict
	}

	applyFields(sub, fields)
	return cloneSubscription(sub), nil
}

func (r *MemorySubscriptionRepository) FindActiveForAccount(_ context.Context, accountID uuid.UUID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if sub.AccountID == accountID &&
			(sub.Status == StatusActive || sub.Status == StatusAuthenticated) {
			return cloneSubscription(sub), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (r *MemorySubscriptionRepository) FindLatestForAccount(_ context.Context, accountID uuid.UUID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *Subscription
	for _, sub := range r.subs {
		if sub.AccountID != accountID {
			continue
		}
		if latest == nil || sub.StartDate.After(latest.StartDate) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(latest), nil
}

func (r *MemorySubscriptionRepository) CountActiveByPlan(_ context.Context, planID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, sub := range r.subs {
		if sub.PlanID == planID && sub.Status == StatusActive {
			n++
		}
	}
	return n, nil
}

// MemoryAccountProjection is an in-memory AccountProjection.
type MemoryAccountProjection struct {
	mu       sync.RWMutex
	pointers map[uuid.UUID]*uuid.UUID
}

func NewMemoryAccountProjection() *MemoryAccountProjection {
	return &MemoryAccountProjection{pointers: make(map[uuid.UUID]*uuid.UUID)}
}

func (p *MemoryAccountProjection) SetActiveSubscription(_ context.Context, accountID uuid.UUID, id *uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == nil {
		p.pointers[accountID] = nil
		return nil
	}
	cp := *id
	p.pointers[accountID] = &cp
	return nil
}

func (p *MemoryAccountProjection) ListRefs(_ context.Context) ([]AccountRef, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	refs := make([]AccountRef, 0, len(p.pointers))
	for accountID, ptr := range p.pointers {
		ref := AccountRef{AccountID: accountID}
		if ptr != nil {
			cp := *ptr
			ref.ActiveSubscriptionID = &cp
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Get returns the stored pointer for an account, for tests.
func (p *MemoryAccountProjection) Get(accountID uuid.UUID) *uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ptr := p.pointers[accountID]
	if ptr == nil {
		return nil
	}
	cp := *ptr
	return &cp
}

// MemoryPlanStore is an in-memory PlanStore and PlanSource.
type MemoryPlanStore struct {
	mu    sync.RWMutex
	plans map[uuid.UUID]Plan
}

// NewMemoryPlanStore copies the given plans. Panics without at least one
// plan so the service never starts with an empty catalog.
func NewMemoryPlanStore(plans ...Plan) *MemoryPlanStore {
	if len(plans) == 0 {
		panic("billing: at least one plan is required")
	}
	cp := make(map[uuid.UUID]Plan, len(plans))
	for _, plan := range plans {
		plan.Limits = maps.Clone(plan.Limits)
		cp[plan.ID] = plan
	}
	return &MemoryPlanStore{plans: cp}
}

func (s *MemoryPlanStore) FindByID(_ context.Context, id uuid.UUID) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return &plan, nil
}

func (s *MemoryPlanStore) FindDefaultFree(_ context.Context) (*Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, plan := range s.plans {
		if plan.Type == PlanTypeFree && plan.IsActive {
			return &plan, nil
		}
	}
	return nil, ErrDefaultPlanNotFound
}

func (s *MemoryPlanStore) Load(_ context.Context) ([]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Plan, 0, len(s.plans))
	for _, plan := range s.plans {
		out = append(out, plan)
	}
	return out, nil
}

func cloneSubscription(sub *Subscription) *Subscription {
	cp := *sub
	cp.EndDate = cloneTime(sub.EndDate)
	cp.CurrentStart = cloneTime(sub.CurrentStart)
	cp.CurrentEnd = cloneTime(sub.CurrentEnd)
	cp.ChargeAt = cloneTime(sub.ChargeAt)
	cp.CancelledAt = cloneTime(sub.CancelledAt)
	cp.Notes = maps.Clone(sub.Notes)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func applyFields(sub *Subscription, fields UpdateFields) {
	sub.Status = fields.Status
	sub.UpdatedAt = fields.UpdatedAt
	if fields.RemainingCount != nil {
		sub.RemainingCount = *fields.RemainingCount
	}
	if fields.PaidCount != nil {
		sub.PaidCount = *fields.PaidCount
	}
	if fields.TotalCount != nil {
		sub.TotalCount = *fields.TotalCount
	}
	if fields.StartDate != nil {
		sub.StartDate = *fields.StartDate
	}
	if fields.EndDate != nil {
		sub.EndDate = cloneTime(fields.EndDate)
	}
	if fields.CurrentStart != nil {
		sub.CurrentStart = cloneTime(fields.CurrentStart)
	}
	if fields.CurrentEnd != nil {
		sub.CurrentEnd = cloneTime(fields.CurrentEnd)
	}
	if fields.ChargeAt != nil {
		sub.ChargeAt = cloneTime(fields.ChargeAt)
	}
	if fields.CancelledAt != nil {
		sub.CancelledAt = cloneTime(fields.CancelledAt)
	}
	if fields.Notes != nil {
		sub.Notes = maps.Clone(fields.Notes)
	}
	if fields.ShortURL != nil {
		sub.ShortURL = *fields.ShortURL
	}
}

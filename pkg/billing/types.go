package billing

// Status represents the lifecycle state of a subscription as reported by the
// payment gateway. Values match the gateway's wire format verbatim.
type Status string

const (
	StatusCreated       Status = "created"
	StatusAuthenticated Status = "authenticated"
	StatusActive        Status = "active"
	StatusPending       Status = "pending"
	StatusHalted        Status = "halted"
	StatusCancelled     Status = "cancelled"
	StatusCompleted     Status = "completed"
	StatusExpired       Status = "expired"
	StatusPaused        Status = "paused"
	StatusResumed       Status = "resumed"
	StatusCharged       Status = "charged"
)

// IsValid reports whether s is one of the known gateway statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusAuthenticated, StatusActive, StatusPending,
		StatusHalted, StatusCancelled, StatusCompleted, StatusExpired,
		StatusPaused, StatusResumed, StatusCharged:
		return true
	}
	return false
}

// IsTerminal reports whether s has no further legal outgoing transitions.
// Cancelled still advances to completed, so it is not terminal here even
// though it ends billing.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// IsSettled reports whether s is one of the end-of-life statuses that the
// relevance filter protects from stale replays.
func (s Status) IsSettled() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// PlanType distinguishes free tiers from paid ones.
type PlanType string

const (
	PlanTypeFree PlanType = "free"
	PlanTypePaid PlanType = "paid"
)

// BillingInterval represents the billing frequency for a plan.
type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = "none"
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, 499.00 INR is Amount: 49900, Currency: "INR".
type Money struct {
	Amount   int64
	Currency string
}

// EventSubscriptionUpdated is the explicit override event type: it is the
// only event the gateway sends that may touch a settled subscription
// regardless of timestamps.
const EventSubscriptionUpdated = "subscription.updated"

// Outcome describes what a reconciliation pass did with a notification.
// Ignored outcomes are acknowledged to the sender so the event is not
// redelivered, but they produce no state change.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeNoop           Outcome = "noop"
	OutcomeIgnoredStale   Outcome = "ignored_stale"
	OutcomeIgnoredIllegal Outcome = "ignored_illegal"
)

package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/billstate/billstate/pkg/lock"
)

// Result describes what a reconciliation entry point did.
//
// ProjectionErr is set when the status write committed but the account
// projection could not be brought in line (config error or write failure).
// The notification is still acknowledged — redelivery cannot fix either
// case — and the consistency sweep repairs stale pointers later.
type Result struct {
	Outcome       Outcome
	Subscription  *Subscription
	ProjectionErr error
}

// CancelResult is returned by the user-initiated cancel flow.
// AlreadyCancelled marks the descriptive no-op: cancelling a subscription
// that was already cancelled is not an error and mutates nothing.
type CancelResult struct {
	Subscription     *Subscription
	AlreadyCancelled bool
}

// VerifyPaymentRequest carries the post-checkout confirmation data. The
// signature covers orderID|paymentID, the same HMAC family as webhook
// signatures with a different field composition.
type VerifyPaymentRequest struct {
	ProviderSubID string
	OrderID       string
	PaymentID     string
	Signature     string
}

// SubscribeRequest creates a subscription for an account.
type SubscribeRequest struct {
	AccountID    uuid.UUID
	PlanID       uuid.UUID
	AccountEmail string
	TotalCount   int
}

// Service wires the reconciliation pipeline: signature verification, event
// parsing, relevance filtering, the status state machine, persistence, and
// the account projection. The webhook, verify-payment, and cancel flows all
// funnel through the same idempotent read-decide-conditional-write path, so
// they are safe to race for the same subscription.
type Service struct {
	repo       SubscriptionRepository
	plans      PlanStore
	gateway    PaymentGateway
	verifier   *SignatureVerifier
	projection *ProjectionUpdater
	locker     lock.Locker
	notifier   StatusNotifier
	metrics    *Metrics
	log        *slog.Logger

	gatewayTimeout time.Duration
	now            func() time.Time
}

// NewService creates the reconciliation service. Panics if a required
// dependency is nil to fail fast during initialization.
func NewService(repo SubscriptionRepository, plans PlanStore, accounts AccountProjection, gateway PaymentGateway, verifier *SignatureVerifier, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("billing: SubscriptionRepository is required")
	}
	if plans == nil {
		panic("billing: PlanStore is required")
	}
	if accounts == nil {
		panic("billing: AccountProjection is required")
	}
	if gateway == nil {
		panic("billing: PaymentGateway is required")
	}
	if verifier == nil {
		panic("billing: SignatureVerifier is required")
	}

	s := &Service{
		repo:           repo,
		plans:          plans,
		gateway:        gateway,
		verifier:       verifier,
		locker:         lock.NewKeyedMutex(),
		notifier:       NopNotifier{},
		metrics:        NewMetrics(nil),
		log:            slog.Default(),
		gatewayTimeout: 10 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.projection = NewProjectionUpdater(plans, accounts, s.log)
	return s
}

// HandleWebhook reconciles one inbound gateway notification against the
// persisted subscription. Signature failure and malformed payloads are
// client errors with no state change; stale and illegal instructions are
// acknowledged without error so the gateway stops redelivering them.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error) {
	if !s.verifier.Verify(payload, signature) {
		s.metrics.WebhookRejected.WithLabelValues("invalid_signature").Inc()
		return nil, ErrInvalidSignature
	}

	event, err := ParseEvent(payload)
	if err != nil {
		s.metrics.WebhookRejected.WithLabelValues("malformed").Inc()
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, event.ProviderSubID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.repo.FindByProviderSubID(ctx, event.ProviderSubID)
	if err != nil {
		// A webhook can outrun the subscribe flow's commit; surfacing the
		// miss makes the gateway redeliver once the record exists.
		s.metrics.WebhookRejected.WithLabelValues("unknown_subscription").Inc()
		return nil, err
	}

	if !IsRelevant(event.Type, &current.Status, event.EventTime, current.LastAppliedAt()) {
		s.log.InfoContext(ctx, "dropped stale notification",
			slog.String("provider_sub_id", event.ProviderSubID),
			slog.String("event_type", event.Type),
			slog.Time("event_time", event.EventTime),
			slog.Time("last_applied_at", current.UpdatedAt))
		s.metrics.WebhookOutcomes.WithLabelValues(string(OutcomeIgnoredStale)).Inc()
		return &Result{Outcome: OutcomeIgnoredStale, Subscription: current}, nil
	}

	res, err := s.applyStatus(ctx, current, event)
	if err != nil {
		return nil, err
	}
	s.metrics.WebhookOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	return res, nil
}

// VerifyPayment is the synchronous post-checkout confirmation path. It
// trusts the gateway's live view rather than any webhook body, and forces
// the subscription to active on success. It may race the webhook path for
// the same subscription; both reduce to the same idempotent write.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*Result, error) {
	if !s.gateway.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature) {
		return nil, ErrPaymentVerificationFail
	}

	release, err := s.locker.Acquire(ctx, req.ProviderSubID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.repo.FindByProviderSubID(ctx, req.ProviderSubID)
	if err != nil {
		return nil, err
	}

	ext, err := s.fetchSubscription(ctx, req.ProviderSubID)
	if err != nil {
		return nil, err
	}

	// The write advances the relevance timestamp like any other path, so a
	// later-arriving webhook with an older gateway timestamp is rejected
	// instead of silently undoing the confirmation.
	event := &Event{
		Type:           "payment.verified",
		ProviderSubID:  req.ProviderSubID,
		Status:         StatusActive,
		EventTime:      s.now(),
		RemainingCount: ext.RemainingCount,
		PaidCount:      ext.PaidCount,
		TotalCount:     ext.TotalCount,
		StartDate:      ext.StartDate,
		EndDate:        ext.EndDate,
		CurrentStart:   ext.CurrentStart,
		CurrentEnd:     ext.CurrentEnd,
		ChargeAt:       ext.ChargeAt,
		ShortURL:       ext.ShortURL,
		Notes:          ext.Notes,
	}

	return s.applyStatus(ctx, current, event)
}

// Cancel is the user-initiated cancellation flow. Only subscriptions in
// active or authenticated status may be cancelled; cancelling an already
// cancelled subscription is a descriptive no-op.
func (s *Service) Cancel(ctx context.Context, providerSubID string) (*CancelResult, error) {
	release, err := s.locker.Acquire(ctx, providerSubID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := s.repo.FindByProviderSubID(ctx, providerSubID)
	if err != nil {
		return nil, err
	}

	if current.IsCancelled() {
		return &CancelResult{Subscription: current, AlreadyCancelled: true}, nil
	}
	if !current.IsCancellable() {
		return nil, fmt.Errorf("%w: status %s", ErrCancelNotAllowed, current.Status)
	}

	started := s.now()
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	ext, err := s.gateway.CancelSubscription(gctx, providerSubID)
	cancel()
	s.observeGatewayCall("cancel_subscription", started, err)
	if err != nil {
		// A timed-out cancel is not a cancel: the subscription keeps its
		// prior status and the caller may retry.
		return nil, err
	}

	endedAt := ext.EndedAt
	if endedAt == nil {
		t := s.now()
		endedAt = &t
	}

	event := &Event{
		Type:           "subscription.cancelled",
		ProviderSubID:  providerSubID,
		Status:         ext.Status,
		EventTime:      *endedAt,
		RemainingCount: 0, // cancellation forces the remaining count to zero
		PaidCount:      current.PaidCount,
		TotalCount:     current.TotalCount,
		EndDate:        endedAt,
		CancelledAt:    endedAt,
		ShortURL:       current.ShortURL,
	}

	res, err := s.applyStatus(ctx, current, event)
	if err != nil {
		return nil, err
	}
	return &CancelResult{Subscription: res.Subscription}, nil
}

// Subscribe creates a subscription for an account in the gateway and
// persists the local record. At most one subscription per account may be in
// active or authenticated status; this flow enforces it. The plan's price
// is snapshotted into the record and never recomputed.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (*Subscription, error) {
	plan, err := s.plans.FindByID(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	// Serialize per account so two concurrent subscribes cannot both pass
	// the live-subscription check; the repository's uniqueness guarantee
	// backstops writers outside this process.
	release, err := s.locker.Acquire(ctx, "account:"+req.AccountID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := s.repo.FindActiveForAccount(ctx, req.AccountID); err == nil {
		return nil, ErrSubscriptionAlreadyExists
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	now := s.now()
	sub := &Subscription{
		ID:        uuid.New(),
		AccountID: req.AccountID,
		PlanID:    plan.ID,
		StartDate: now,
		Amount:    plan.Price,
	}

	if plan.IsFree() {
		// Free plans bypass the gateway entirely.
		sub.Status = StatusActive
		sub.UpdatedAt = now
	} else {
		started := s.now()
		gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		ext, gerr := s.gateway.Subscribe(gctx, req.AccountEmail, plan.ProviderPlanID, req.TotalCount)
		cancel()
		s.observeGatewayCall("subscribe", started, gerr)
		if gerr != nil {
			return nil, gerr
		}

		sub.ProviderSubID = ext.ID
		sub.Status = ext.Status
		sub.RemainingCount = ext.RemainingCount
		sub.PaidCount = ext.PaidCount
		sub.TotalCount = ext.TotalCount
		sub.CurrentStart = ext.CurrentStart
		sub.CurrentEnd = ext.CurrentEnd
		sub.ChargeAt = ext.ChargeAt
		sub.EndDate = ext.EndDate
		sub.ShortURL = ext.ShortURL
		sub.Notes = ext.Notes
		if ext.StartDate != nil {
			sub.StartDate = *ext.StartDate
		}
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	if perr := s.projection.Apply(ctx, sub); perr != nil {
		s.metrics.ProjectionErrors.Inc()
		s.log.ErrorContext(ctx, "projection update failed after subscribe",
			slog.String("subscription_id", sub.ID.String()),
			slog.Any("error", perr))
	}

	s.notifier.NotifyStatusChange(ctx, StatusChange{
		SubscriptionID: sub.ID,
		AccountID:      sub.AccountID,
		ProviderSubID:  sub.ProviderSubID,
		To:             sub.Status,
		OccurredAt:     now,
	})

	return sub, nil
}

// applyStatus runs the state machine and the conditional write, retrying
// the whole read-decide-write cycle when another writer got there first.
func (s *Service) applyStatus(ctx context.Context, current *Subscription, event *Event) (*Result, error) {
	const maxAttempts = 3

	for attempt := 0; ; attempt++ {
		if event.Status == current.Status {
			// Idempotent re-application: skip the update, return the
			// record unchanged.
			return &Result{Outcome: OutcomeNoop, Subscription: current}, nil
		}

		if !CanTransition(current.Status, event.Status) {
			s.log.WarnContext(ctx, "skipped illegal status transition",
				slog.String("provider_sub_id", event.ProviderSubID),
				slog.String("from", string(current.Status)),
				slog.String("to", string(event.Status)),
				slog.String("event_type", event.Type))
			return &Result{Outcome: OutcomeIgnoredIllegal, Subscription: current}, nil
		}

		updated, err := s.repo.Update(ctx, event.ProviderSubID, current.Status, s.updateFields(current, event))
		if err == nil {
			res := &Result{Outcome: OutcomeApplied, Subscription: updated}
			if perr := s.projection.Apply(ctx, updated); perr != nil {
				s.metrics.ProjectionErrors.Inc()
				s.log.ErrorContext(ctx, "projection update failed",
					slog.String("subscription_id", updated.ID.String()),
					slog.String("status", string(updated.Status)),
					slog.Any("error", perr))
				res.ProjectionErr = perr
			}
			s.notifier.NotifyStatusChange(ctx, StatusChange{
				SubscriptionID: updated.ID,
				AccountID:      updated.AccountID,
				ProviderSubID:  updated.ProviderSubID,
				From:           current.Status,
				To:             updated.Status,
				OccurredAt:     event.EventTime,
			})
			return res, nil
		}
		if !errors.Is(err, ErrUpdateConflict) || attempt >= maxAttempts-1 {
			return nil, err
		}

		current, err = s.repo.FindByProviderSubID(ctx, event.ProviderSubID)
		if err != nil {
			return nil, err
		}
		if !IsRelevant(event.Type, &current.Status, event.EventTime, current.LastAppliedAt()) {
			return &Result{Outcome: OutcomeIgnoredStale, Subscription: current}, nil
		}
	}
}

func (s *Service) updateFields(current *Subscription, event *Event) UpdateFields {
	fields := UpdateFields{
		Status:         event.Status,
		RemainingCount: &event.RemainingCount,
		PaidCount:      &event.PaidCount,
		TotalCount:     &event.TotalCount,
		StartDate:      event.StartDate,
		CurrentStart:   event.CurrentStart,
		CurrentEnd:     event.CurrentEnd,
		ChargeAt:       event.ChargeAt,
		CancelledAt:    event.CancelledAt,
		UpdatedAt:      event.EventTime,
		Notes:          event.Notes,
	}
	if event.ShortURL != "" {
		fields.ShortURL = &event.ShortURL
	}
	// The relevance timestamp never moves backwards. Cancel and
	// verify-payment stamp times from the gateway clock or the local wall
	// clock, either of which can trail the record's UpdatedAt; writing the
	// older stamp would make already-dropped events relevant again.
	if fields.UpdatedAt.Before(current.UpdatedAt) {
		fields.UpdatedAt = current.UpdatedAt
	}
	if event.Status == StatusCancelled {
		// Cancellation forces the remaining count to zero and stamps
		// cancelledAt even when the gateway omits it.
		zero := 0
		fields.RemainingCount = &zero
		if fields.CancelledAt == nil {
			t := event.EventTime
			fields.CancelledAt = &t
		}
	}
	// endDate, once set, is never earlier than startDate
	if event.EndDate != nil && !event.EndDate.Before(current.StartDate) {
		fields.EndDate = event.EndDate
	}
	return fields
}

func (s *Service) fetchSubscription(ctx context.Context, providerSubID string) (*ExternalSubscription, error) {
	started := s.now()
	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	ext, err := s.gateway.FetchSubscription(gctx, providerSubID)
	s.observeGatewayCall("fetch_subscription", started, err)
	return ext, err
}

func (s *Service) observeGatewayCall(call string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.GatewayCalls.With(prometheus.Labels{"call": call, "status": status}).
		Observe(s.now().Sub(started).Seconds())
}

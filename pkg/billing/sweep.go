package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

func pointerEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Sweeper is the periodic consistency job repairing account projections.
// The projection is a cache with two dependent writes behind it; when the
// second write fails the pointer drifts from the committed subscription
// status, and this job is the reconciliation path of record for that gap.
type Sweeper struct {
	repo       SubscriptionRepository
	accounts   AccountProjection
	projection *ProjectionUpdater
	metrics    *Metrics
	log        *slog.Logger
	interval   time.Duration
}

// NewSweeper creates a sweeper running every interval when started with Run.
func NewSweeper(repo SubscriptionRepository, accounts AccountProjection, projection *ProjectionUpdater, opts ...SweeperOption) *Sweeper {
	if repo == nil {
		panic("billing: SubscriptionRepository is required")
	}
	if accounts == nil {
		panic("billing: AccountProjection is required")
	}
	if projection == nil {
		panic("billing: ProjectionUpdater is required")
	}

	s := &Sweeper{
		repo:       repo,
		accounts:   accounts,
		projection: projection,
		metrics:    NewMetrics(nil),
		log:        slog.Default(),
		interval:   5 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes Sweep every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			repaired, err := s.Sweep(ctx)
			if err != nil {
				s.metrics.SweepRuns.WithLabelValues("error").Inc()
				s.log.ErrorContext(ctx, "projection sweep failed", slog.Any("error", err))
				continue
			}
			s.metrics.SweepRuns.WithLabelValues("ok").Inc()
			if repaired > 0 {
				s.log.InfoContext(ctx, "projection sweep repaired stale pointers",
					slog.Int("repaired", repaired))
			}
		}
	}
}

// Sweep compares every account's active-subscription pointer against the
// pointer its subscription statuses imply, and rewrites the ones that
// drifted. Returns the number of repaired accounts.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	refs, err := s.accounts.ListRefs(ctx)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, ref := range refs {
		var expected *Subscription
		sub, err := s.repo.FindLatestForAccount(ctx, ref.AccountID)
		switch {
		case err == nil:
			expected = sub
		case errors.Is(err, ErrSubscriptionNotFound):
			// No subscription: any stale pointer must be cleared.
		default:
			return repaired, err
		}

		var want *uuid.UUID
		if expected != nil {
			want, err = s.projection.Expected(ctx, expected)
			if err != nil {
				// Config errors (no free plan) abort the sweep loudly; a
				// silent skip would hide exactly the drift we exist to fix.
				return repaired, err
			}
		}

		if pointerEqual(ref.ActiveSubscriptionID, want) {
			continue
		}

		if err := s.accounts.SetActiveSubscription(ctx, ref.AccountID, want); err != nil {
			return repaired, errors.Join(ErrProjectionWrite, err)
		}
		s.metrics.SweepRepairs.Inc()
		s.log.WarnContext(ctx, "repaired stale account projection",
			slog.String("account_id", ref.AccountID.String()))
		repaired++
	}

	return repaired, nil
}

// SweeperOption configures the sweeper.
type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

func WithSweepMetrics(m *Metrics) SweeperOption {
	return func(s *Sweeper) {
		if m != nil {
			s.metrics = m
		}
	}
}

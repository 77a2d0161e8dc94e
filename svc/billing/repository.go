package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	core "github.com/billstate/billstate/pkg/billing"
	"github.com/billstate/billstate/pkg/pg"
)

// Repository is the PostgreSQL implementation of the core persistence
// ports: subscription records, the account projection, and plan lookups.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("billing: pgx pool is required")
	}
	return &Repository{pool: pool}
}

const subscriptionColumns = `id, account_id, plan_id, provider_sub_id, status,
	remaining_count, paid_count, total_count,
	start_date, end_date, current_start, current_end, charge_at, cancelled_at,
	updated_at, amount, currency, notes, short_url`

func (r *Repository) Create(ctx context.Context, sub *core.Subscription) error {
	notes, err := marshalNotes(sub.Notes)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		sub.ID, sub.AccountID, sub.PlanID, sub.ProviderSubID, sub.Status,
		sub.RemainingCount, sub.PaidCount, sub.TotalCount,
		sub.StartDate, sub.EndDate, sub.CurrentStart, sub.CurrentEnd, sub.ChargeAt, sub.CancelledAt,
		sub.UpdatedAt, sub.Amount.Amount, sub.Amount.Currency, notes, sub.ShortURL,
	)
	if pg.IsDuplicateKey(err) {
		return core.ErrSubscriptionAlreadyExists
	}
	return err
}

func (r *Repository) FindByProviderSubID(ctx context.Context, providerSubID string) (*core.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE provider_sub_id = $1`,
		providerSubID,
	)
	return scanSubscription(row)
}

// Update applies the partial fields while the row's status still equals
// expectedStatus. The WHERE clause doubles as the optimistic concurrency
// check: zero rows means another writer moved the status between our read
// and this write.
func (r *Repository) Update(ctx context.Context, providerSubID string, expectedStatus core.Status, fields core.UpdateFields) (*core.Subscription, error) {
	notes, err := marshalNotes(fields.Notes)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE subscriptions SET
			status          = $3,
			updated_at      = $4,
			remaining_count = COALESCE($5, remaining_count),
			paid_count      = COALESCE($6, paid_count),
			total_count     = COALESCE($7, total_count),
			start_date      = COALESCE($8, start_date),
			end_date        = COALESCE($9, end_date),
			current_start   = COALESCE($10, current_start),
			current_end     = COALESCE($11, current_end),
			charge_at       = COALESCE($12, charge_at),
			cancelled_at    = COALESCE($13, cancelled_at),
			notes           = COALESCE($14, notes),
			short_url       = COALESCE($15, short_url)
		WHERE provider_sub_id = $1 AND status = $2
		RETURNING `+subscriptionColumns,
		providerSubID, expectedStatus,
		fields.Status, fields.UpdatedAt,
		fields.RemainingCount, fields.PaidCount, fields.TotalCount,
		fields.StartDate, fields.EndDate, fields.CurrentStart, fields.CurrentEnd,
		fields.ChargeAt, fields.CancelledAt, notes, fields.ShortURL,
	)

	sub, err := scanSubscription(row)
	if errors.Is(err, core.ErrSubscriptionNotFound) {
		// Distinguish a vanished row from a lost race.
		if _, ferr := r.FindByProviderSubID(ctx, providerSubID); ferr == nil {
			return nil, core.ErrUpdateConflict
		}
		return nil, core.ErrSubscriptionNotFound
	}
	if pg.IsDuplicateKey(err) {
		// The partial unique index refused a second live subscription for
		// the account.
		return nil, core.ErrSubscriptionAlreadyExists
	}
	return sub, err
}

func (r *Repository) FindActiveForAccount(ctx context.Context, accountID uuid.UUID) (*core.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1 AND status = ANY($2)
		ORDER BY start_date DESC
		LIMIT 1`,
		accountID, []string{string(core.StatusActive), string(core.StatusAuthenticated)},
	)
	return scanSubscription(row)
}

func (r *Repository) FindLatestForAccount(ctx context.Context, accountID uuid.UUID) (*core.Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE account_id = $1
		ORDER BY start_date DESC
		LIMIT 1`,
		accountID,
	)
	return scanSubscription(row)
}

func (r *Repository) CountActiveByPlan(ctx context.Context, planID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM subscriptions
		WHERE plan_id = $1 AND status = $2`,
		planID, core.StatusActive,
	).Scan(&n)
	return n, err
}

// SetActiveSubscription writes the denormalized pointer on the account row.
func (r *Repository) SetActiveSubscription(ctx context.Context, accountID uuid.UUID, id *uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET active_subscription_id = $2 WHERE id = $1`,
		accountID, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s not found", accountID)
	}
	return nil
}

func (r *Repository) ListRefs(ctx context.Context) ([]core.AccountRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, active_subscription_id FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []core.AccountRef
	for rows.Next() {
		var ref core.AccountRef
		if err := rows.Scan(&ref.AccountID, &ref.ActiveSubscriptionID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*core.Plan, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_plan_id, name, type, price_amount, price_currency,
			billing_interval, period, features, limits, is_active
		FROM plans WHERE id = $1`,
		id,
	)
	return scanPlan(row)
}

func (r *Repository) FindDefaultFree(ctx context.Context) (*core.Plan, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_plan_id, name, type, price_amount, price_currency,
			billing_interval, period, features, limits, is_active
		FROM plans
		WHERE type = $1 AND is_active
		LIMIT 1`,
		core.PlanTypeFree,
	)
	plan, err := scanPlan(row)
	if errors.Is(err, core.ErrPlanNotFound) {
		return nil, core.ErrDefaultPlanNotFound
	}
	return plan, err
}

func scanSubscription(row pgx.Row) (*core.Subscription, error) {
	var (
		sub           core.Subscription
		providerSubID *string
		notes         []byte
	)
	err := row.Scan(
		&sub.ID, &sub.AccountID, &sub.PlanID, &providerSubID, &sub.Status,
		&sub.RemainingCount, &sub.PaidCount, &sub.TotalCount,
		&sub.StartDate, &sub.EndDate, &sub.CurrentStart, &sub.CurrentEnd, &sub.ChargeAt, &sub.CancelledAt,
		&sub.UpdatedAt, &sub.Amount.Amount, &sub.Amount.Currency, &notes, &sub.ShortURL,
	)
	if pg.IsNotFound(err) {
		return nil, core.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	if providerSubID != nil {
		sub.ProviderSubID = *providerSubID
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &sub.Notes); err != nil {
			return nil, err
		}
	}
	return &sub, nil
}

func scanPlan(row pgx.Row) (*core.Plan, error) {
	var (
		plan   core.Plan
		limits []byte
	)
	err := row.Scan(
		&plan.ID, &plan.ProviderPlanID, &plan.Name, &plan.Type,
		&plan.Price.Amount, &plan.Price.Currency,
		&plan.Interval, &plan.Period, &plan.Features, &limits, &plan.IsActive,
	)
	if pg.IsNotFound(err) {
		return nil, core.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &plan.Limits); err != nil {
			return nil, err
		}
	}
	return &plan, nil
}

func marshalNotes(notes map[string]string) ([]byte, error) {
	if notes == nil {
		return nil, nil
	}
	return json.Marshal(notes)
}

package billing_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/billstate/billstate/pkg/billing"
	svcbilling "github.com/billstate/billstate/svc/billing"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validCatalog = `
plans:
  - id: 6f1f8f9a-7c14-4b5e-9f4a-3a2da45d9c01
    provider_plan_id: plan_NXxGq8LZK4dsp8
    name: Pro Monthly
    type: paid
    price: { amount: 49900, currency: INR }
    interval: monthly
    period: 1
    features: [priority-support]
    limits: { projects: 50 }
    is_active: true
  - id: 8c0a2a4e-30cb-4c7f-9a31-51bb3b6f0b77
    name: Free
    type: free
    is_active: true
`

func TestYAMLPlanSource_Load(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("parses a valid catalog", func(t *testing.T) {
		t.Parallel()
		src := svcbilling.NewYAMLPlanSource(writeCatalog(t, validCatalog))

		plans, err := src.Load(ctx)
		require.NoError(t, err)
		require.Len(t, plans, 2)

		pro := plans[0]
		assert.Equal(t, uuid.MustParse("6f1f8f9a-7c14-4b5e-9f4a-3a2da45d9c01"), pro.ID)
		assert.Equal(t, "plan_NXxGq8LZK4dsp8", pro.ProviderPlanID)
		assert.Equal(t, core.PlanTypePaid, pro.Type)
		assert.Equal(t, core.Money{Amount: 49900, Currency: "INR"}, pro.Price)
		assert.Equal(t, core.BillingIntervalMonthly, pro.Interval)
		assert.Equal(t, int64(50), pro.Limits["projects"])

		free := plans[1]
		assert.Equal(t, core.PlanTypeFree, free.Type)
		assert.True(t, free.IsFree())
		assert.Equal(t, core.BillingIntervalNone, free.Interval)
	})

	t.Run("rejects a paid plan without a provider id", func(t *testing.T) {
		t.Parallel()
		src := svcbilling.NewYAMLPlanSource(writeCatalog(t, `
plans:
  - id: 6f1f8f9a-7c14-4b5e-9f4a-3a2da45d9c01
    name: Pro
    type: paid
    is_active: true
`))
		_, err := src.Load(ctx)
		assert.ErrorContains(t, err, "provider_plan_id")
	})

	t.Run("rejects an invalid plan id", func(t *testing.T) {
		t.Parallel()
		src := svcbilling.NewYAMLPlanSource(writeCatalog(t, `
plans:
  - id: not-a-uuid
    name: Pro
    type: free
`))
		_, err := src.Load(ctx)
		assert.ErrorContains(t, err, "invalid id")
	})

	t.Run("rejects an unknown plan type", func(t *testing.T) {
		t.Parallel()
		src := svcbilling.NewYAMLPlanSource(writeCatalog(t, `
plans:
  - id: 6f1f8f9a-7c14-4b5e-9f4a-3a2da45d9c01
    name: Pro
    type: enterprise
`))
		_, err := src.Load(ctx)
		assert.ErrorContains(t, err, "invalid type")
	})

	t.Run("rejects an empty catalog", func(t *testing.T) {
		t.Parallel()
		src := svcbilling.NewYAMLPlanSource(writeCatalog(t, "plans: []\n"))
		_, err := src.Load(ctx)
		assert.ErrorContains(t, err, "empty")
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		src := svcbilling.NewYAMLPlanSource(filepath.Join(t.TempDir(), "missing.yml"))
		_, err := src.Load(ctx)
		assert.Error(t, err)
	})
}

func TestLoadPlanStore(t *testing.T) {
	t.Parallel()

	src := svcbilling.NewYAMLPlanSource(writeCatalog(t, validCatalog))
	store, err := svcbilling.LoadPlanStore(context.Background(), src)
	require.NoError(t, err)

	plan, err := store.FindByID(context.Background(), uuid.MustParse("6f1f8f9a-7c14-4b5e-9f4a-3a2da45d9c01"))
	require.NoError(t, err)
	assert.Equal(t, "Pro Monthly", plan.Name)

	free, err := store.FindDefaultFree(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.PlanTypeFree, free.Type)
}

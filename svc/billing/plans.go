package billing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	core "github.com/billstate/billstate/pkg/billing"
)

// YAMLPlanSource loads the plan catalog from a YAML file. Plans change
// rarely and deploy with the service, so a file beats a config UI here.
//
// Catalog shape:
//
//	plans:
//	  - id: 6f1f8f9a-7c14-4b5e-9f4a-3a2da45d9c01
//	    provider_plan_id: plan_NXxGq8LZK4dsp8
//	    name: Pro Monthly
//	    type: paid
//	    price: { amount: 49900, currency: INR }
//	    interval: monthly
//	    period: 1
//	    is_active: true
type YAMLPlanSource struct {
	path string
}

func NewYAMLPlanSource(path string) *YAMLPlanSource {
	return &YAMLPlanSource{path: path}
}

type yamlCatalog struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID             string `yaml:"id"`
	ProviderPlanID string `yaml:"provider_plan_id"`
	Name           string `yaml:"name"`
	Type           string `yaml:"type"`
	Price          struct {
		Amount   int64  `yaml:"amount"`
		Currency string `yaml:"currency"`
	} `yaml:"price"`
	Interval string           `yaml:"interval"`
	Period   int              `yaml:"period"`
	Features []string         `yaml:"features"`
	Limits   map[string]int64 `yaml:"limits"`
	IsActive bool             `yaml:"is_active"`
}

func (s *YAMLPlanSource) Load(_ context.Context) ([]core.Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}

	var catalog yamlCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(catalog.Plans) == 0 {
		return nil, errors.New("plan catalog is empty")
	}

	plans := make([]core.Plan, 0, len(catalog.Plans))
	for i, yp := range catalog.Plans {
		id, err := uuid.Parse(yp.ID)
		if err != nil {
			return nil, fmt.Errorf("plan %d: invalid id %q: %w", i, yp.ID, err)
		}

		planType := core.PlanType(yp.Type)
		if planType != core.PlanTypeFree && planType != core.PlanTypePaid {
			return nil, fmt.Errorf("plan %q: invalid type %q", yp.Name, yp.Type)
		}
		if planType == core.PlanTypePaid && yp.ProviderPlanID == "" {
			return nil, fmt.Errorf("plan %q: paid plan needs a provider_plan_id", yp.Name)
		}

		interval := core.BillingInterval(yp.Interval)
		if interval == "" {
			interval = core.BillingIntervalNone
		}

		plans = append(plans, core.Plan{
			ID:             id,
			ProviderPlanID: yp.ProviderPlanID,
			Name:           yp.Name,
			Type:           planType,
			Price:          core.Money{Amount: yp.Price.Amount, Currency: yp.Price.Currency},
			Interval:       interval,
			Period:         yp.Period,
			Features:       yp.Features,
			Limits:         yp.Limits,
			IsActive:       yp.IsActive,
		})
	}

	return plans, nil
}

// LoadPlanStore builds an in-memory plan store from a source. The catalog
// is immutable for the process lifetime.
func LoadPlanStore(ctx context.Context, src core.PlanSource) (*core.MemoryPlanStore, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return core.NewMemoryPlanStore(plans...), nil
}

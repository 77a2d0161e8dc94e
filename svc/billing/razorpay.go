package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	core "github.com/billstate/billstate/pkg/billing"
)

// RazorpayConfig holds the gateway credentials and secrets.
type RazorpayConfig struct {
	KeyID         string `env:"RAZORPAY_KEY_ID,required"`
	KeySecret     string `env:"RAZORPAY_KEY_SECRET,required"`
	WebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET,required"`
}

// RazorpayGateway implements the core PaymentGateway port over the official
// Razorpay SDK. The SDK has no context support, so every call runs in a
// goroutine raced against ctx: a deadline or cancellation returns
// ErrGatewayUnavailable and the in-flight call is abandoned. A timed-out
// call is never reported as success.
type RazorpayGateway struct {
	client *razorpay.Client
	config RazorpayConfig
}

func NewRazorpayGateway(config RazorpayConfig) (*RazorpayGateway, error) {
	if config.KeyID == "" || config.KeySecret == "" {
		return nil, errors.New("razorpay key id and secret are required")
	}
	return &RazorpayGateway{
		client: razorpay.NewClient(config.KeyID, config.KeySecret),
		config: config,
	}, nil
}

func (g *RazorpayGateway) Subscribe(ctx context.Context, accountEmail, providerPlanID string, totalCount int) (*core.ExternalSubscription, error) {
	if providerPlanID == "" {
		return nil, errors.New("provider plan id is required")
	}
	if totalCount < 1 {
		return nil, errors.New("total count must be positive")
	}

	data := map[string]interface{}{
		"plan_id":         providerPlanID,
		"total_count":     totalCount,
		"customer_notify": 1,
		"notes": map[string]interface{}{
			"email": accountEmail,
		},
	}

	raw, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Subscription.Create(data, nil)
	})
	if err != nil {
		return nil, err
	}
	return normalizeSubscription(raw)
}

func (g *RazorpayGateway) CancelSubscription(ctx context.Context, providerSubID string) (*core.ExternalSubscription, error) {
	raw, err := g.call(ctx, func() (map[string]interface{}, error) {
		// cancel_at_cycle_end=0 ends billing immediately
		return g.client.Subscription.Cancel(providerSubID, map[string]interface{}{
			"cancel_at_cycle_end": 0,
		}, nil)
	})
	if err != nil {
		return nil, err
	}
	return normalizeSubscription(raw)
}

func (g *RazorpayGateway) FetchSubscription(ctx context.Context, providerSubID string) (*core.ExternalSubscription, error) {
	raw, err := g.call(ctx, func() (map[string]interface{}, error) {
		return g.client.Subscription.Fetch(providerSubID, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	return normalizeSubscription(raw)
}

// VerifyPaymentSignature checks the post-checkout signature over
// orderID|paymentID using the key secret.
func (g *RazorpayGateway) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	return utils.VerifyPaymentSignature(map[string]interface{}{
		"razorpay_order_id":   orderID,
		"razorpay_payment_id": paymentID,
	}, signature, g.config.KeySecret)
}

type callResult struct {
	raw map[string]interface{}
	err error
}

func (g *RazorpayGateway) call(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	done := make(chan callResult, 1)
	go func() {
		raw, err := fn()
		done <- callResult{raw: raw, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, errors.Join(core.ErrGatewayUnavailable, res.err)
		}
		return res.raw, nil
	case <-ctx.Done():
		return nil, errors.Join(core.ErrGatewayUnavailable, ctx.Err())
	}
}

// normalizeSubscription maps the SDK's generic response into the core view.
func normalizeSubscription(raw map[string]interface{}) (*core.ExternalSubscription, error) {
	id, _ := raw["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("gateway response missing subscription id")
	}

	status := core.Status(stringField(raw, "status"))
	if !status.IsValid() {
		return nil, fmt.Errorf("gateway response has unknown status %q", stringField(raw, "status"))
	}

	ext := &core.ExternalSubscription{
		ID:             id,
		ProviderPlanID: stringField(raw, "plan_id"),
		Status:         status,
		RemainingCount: intField(raw, "remaining_count"),
		PaidCount:      intField(raw, "paid_count"),
		TotalCount:     intField(raw, "total_count"),
		StartDate:      timeField(raw, "start_at"),
		EndDate:        timeField(raw, "end_at"),
		CurrentStart:   timeField(raw, "current_start"),
		CurrentEnd:     timeField(raw, "current_end"),
		ChargeAt:       timeField(raw, "charge_at"),
		EndedAt:        timeField(raw, "ended_at"),
		ShortURL:       stringField(raw, "short_url"),
	}

	if notes, ok := raw["notes"].(map[string]interface{}); ok {
		ext.Notes = make(map[string]string, len(notes))
		for k, v := range notes {
			if s, ok := v.(string); ok {
				ext.Notes[k] = s
			}
		}
	}

	return ext, nil
}

func stringField(raw map[string]interface{}, key string) string {
	s, _ := raw[key].(string)
	return s
}

// intField tolerates the float64 that encoding/json produces for numbers.
func intField(raw map[string]interface{}, key string) int {
	switch v := raw[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func timeField(raw map[string]interface{}, key string) *time.Time {
	sec := int64(intField(raw, key))
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

package billing

import (
	"context"
	"time"
)

// ExternalSubscription is the gateway's view of a subscription, normalized
// from the provider's wire format. Optional timestamps are nil when the
// gateway has not set them.
type ExternalSubscription struct {
	ID             string // gateway's subscription id
	ProviderPlanID string
	Status         Status
	RemainingCount int
	PaidCount      int
	TotalCount     int
	StartDate      *time.Time
	EndDate        *time.Time
	CurrentStart   *time.Time
	CurrentEnd     *time.Time
	ChargeAt       *time.Time
	EndedAt        *time.Time
	ShortURL       string
	Notes          map[string]string
}

// PaymentGateway is the port to the external payment provider. All calls
// must carry bounded timeouts; a timed-out call is never treated as
// success — the subscription stays in its prior status and the operation is
// reported as failed and safe to retry.
//
// Implementations wrap provider transport failures in
// ErrGatewayUnavailable so user-initiated flows can surface them as
// retryable.
type PaymentGateway interface {
	// Subscribe creates a subscription on the gateway for the given plan
	// and total number of billing cycles.
	Subscribe(ctx context.Context, accountEmail, providerPlanID string, totalCount int) (*ExternalSubscription, error)

	// CancelSubscription cancels on the gateway and returns the resulting
	// terminal view (status and the time billing ended).
	CancelSubscription(ctx context.Context, providerSubID string) (*ExternalSubscription, error)

	// FetchSubscription returns the gateway's live view, used by the
	// verify-payment flow instead of trusting a webhook body.
	FetchSubscription(ctx context.Context, providerSubID string) (*ExternalSubscription, error)

	// VerifyPaymentSignature checks the post-checkout signature computed
	// over orderID|paymentID. Same HMAC family as webhook signatures,
	// different field composition.
	VerifyPaymentSignature(orderID, paymentID, signature string) bool
}

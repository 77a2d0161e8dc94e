package billing

import "errors"

var (
	ErrInvalidSignature = errors.New("billing: invalid webhook signature")
	ErrMalformedEvent   = errors.New("billing: malformed gateway event")

	ErrSubscriptionNotFound      = errors.New("billing: subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("billing: subscription already exists for account")
	ErrCancelNotAllowed          = errors.New("billing: subscription is not in a cancellable status")

	// Configuration errors: acknowledged as processed-with-error on the
	// webhook path since redelivery cannot fix them, but they must alert
	// operators.
	ErrPlanNotFound        = errors.New("billing: plan not found")
	ErrDefaultPlanNotFound = errors.New("billing: no active free plan configured")

	ErrGatewayUnavailable      = errors.New("billing: payment gateway unavailable")
	ErrPaymentVerificationFail = errors.New("billing: payment signature verification failed")

	ErrProjectionWrite = errors.New("billing: account projection write failed")

	// ErrUpdateConflict is returned by repositories when a conditional
	// update matched no row because the expected status changed underneath.
	// The orchestrator re-reads and retries.
	ErrUpdateConflict = errors.New("billing: concurrent subscription update")
)

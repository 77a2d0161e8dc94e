// Package billing reconciles subscription state against asynchronous,
// possibly duplicated, possibly out-of-order notifications from an external
// payment gateway.
//
// The pipeline for one inbound notification is fixed: verify the HMAC
// signature over the raw payload, parse the event, compare it against the
// persisted record with the relevance filter, validate the proposed status
// change with the state machine, commit it with a conditional update, then
// synchronize the account's active-subscription projection and publish a
// status-changed notification.
//
// Three entry points converge on that pipeline: the webhook handler, the
// user-initiated verify-payment flow (which trusts the gateway's live view
// and forces active), and the user-initiated cancel flow. They may race for
// the same subscription; correctness comes from the idempotent
// read-decide-conditional-write discipline rather than mutual exclusion,
// with a per-subscription lock layered on top to avoid wasted retries.
//
// Stale and illegal instructions are acknowledged without error: an
// at-least-once, unordered feed routinely redelivers old information,
// and rejecting it with a non-2xx would only cause more redelivery.
//
// Basic wiring:
//
//	verifier := billing.NewSignatureVerifier(cfg.WebhookSecret)
//	svc := billing.NewService(repo, plans, accounts, gateway, verifier,
//		billing.WithLogger(log),
//		billing.WithNotifier(hub),
//	)
//	result, err := svc.HandleWebhook(ctx, body, r.Header.Get("X-Webhook-Signature"))
//
// The account projection is derived state reconciled opportunistically; run
// the Sweeper to repair pointers that drift after partial failures.
package billing

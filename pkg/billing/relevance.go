package billing

import "time"

// IsRelevant decides whether an inbound notification carries information
// newer than what is already persisted. Gateways deliver webhooks
// at-least-once and without ordering guarantees; anything that cannot
// represent new information is dropped here, acknowledged to the sender so
// it is not redelivered, and produces no state change.
//
// current is nil when no record has been seen yet (first-seen events are
// always relevant). lastAppliedAt is nil when no notification has ever been
// applied to the record.
func IsRelevant(eventType string, current *Status, eventTime time.Time, lastAppliedAt *time.Time) bool {
	if current == nil {
		return true
	}

	// Settled subscriptions only move through the explicit override channel
	// or on strictly newer information.
	if current.IsSettled() {
		if eventType == EventSubscriptionUpdated {
			return true
		}
		return lastAppliedAt != nil && eventTime.After(*lastAppliedAt)
	}

	if lastAppliedAt == nil {
		return true
	}
	return eventTime.After(*lastAppliedAt)
}

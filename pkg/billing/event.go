package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event is a parsed gateway notification. Timestamps on the wire are unix
// seconds; EventTime is the gateway's clock and is the only ordering input
// the relevance filter uses.
type Event struct {
	Type          string
	ProviderSubID string
	Status        Status
	EventTime     time.Time

	RemainingCount int
	PaidCount      int
	TotalCount     int
	StartDate      *time.Time
	EndDate        *time.Time
	CurrentStart   *time.Time
	CurrentEnd     *time.Time
	ChargeAt       *time.Time
	CancelledAt    *time.Time // set by the cancel flow, never parsed from the wire
	ShortURL       string
	Notes          map[string]string
}

type eventEnvelope struct {
	Event     string `json:"event"`
	CreatedAt int64  `json:"created_at"`
	Payload   struct {
		Subscription struct {
			Entity *subscriptionEntity `json:"entity"`
		} `json:"subscription"`
	} `json:"payload"`
}

type subscriptionEntity struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	RemainingCount int               `json:"remaining_count"`
	PaidCount      int               `json:"paid_count"`
	TotalCount     int               `json:"total_count"`
	StartAt        int64             `json:"start_at"`
	EndAt          int64             `json:"end_at"`
	CurrentStart   int64             `json:"current_start"`
	CurrentEnd     int64             `json:"current_end"`
	ChargeAt       int64             `json:"charge_at"`
	ShortURL       string            `json:"short_url"`
	Notes          map[string]string `json:"notes"`
}

// ParseEvent decodes a raw notification body into an Event. It must only be
// called after the signature has been verified. Returns ErrMalformedEvent
// when the body is not valid JSON, the subscription entity is missing, the
// status is unknown, or any counter is negative.
func ParseEvent(payload []byte) (*Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	entity := env.Payload.Subscription.Entity
	if entity == nil || entity.ID == "" {
		return nil, fmt.Errorf("%w: missing subscription entity", ErrMalformedEvent)
	}
	if env.Event == "" || env.CreatedAt <= 0 {
		return nil, fmt.Errorf("%w: missing event type or timestamp", ErrMalformedEvent)
	}

	status := Status(entity.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedEvent, entity.Status)
	}
	if entity.RemainingCount < 0 || entity.PaidCount < 0 || entity.TotalCount < 0 {
		return nil, fmt.Errorf("%w: negative counter", ErrMalformedEvent)
	}

	return &Event{
		Type:           env.Event,
		ProviderSubID:  entity.ID,
		Status:         status,
		EventTime:      time.Unix(env.CreatedAt, 0).UTC(),
		RemainingCount: entity.RemainingCount,
		PaidCount:      entity.PaidCount,
		TotalCount:     entity.TotalCount,
		StartDate:      unixPtr(entity.StartAt),
		EndDate:        unixPtr(entity.EndAt),
		CurrentStart:   unixPtr(entity.CurrentStart),
		CurrentEnd:     unixPtr(entity.CurrentEnd),
		ChargeAt:       unixPtr(entity.ChargeAt),
		ShortURL:       entity.ShortURL,
		Notes:          entity.Notes,
	}, nil
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

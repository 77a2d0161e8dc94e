package billing

// transitions is the authoritative table of legal status changes. The
// gateway is the system of record for most statuses, so only the row for
// the revenue-bearing active status is enforced (see CanTransition); the
// remaining rows document the expected feed shape and back AllowedNext.
var transitions = map[Status][]Status{
	StatusCreated:       {StatusAuthenticated, StatusPending},
	StatusAuthenticated: {StatusActive},
	StatusActive:        {StatusHalted, StatusCancelled, StatusPaused},
	StatusPaused:        {StatusResumed},
	StatusResumed:       {StatusActive},
	StatusHalted:        {StatusCancelled},
	StatusCancelled:     {StatusCompleted},
	StatusCompleted:     {},
	StatusExpired:       {},
	StatusCharged:       {StatusActive},
}

// CanTransition reports whether a status change from current to proposed is
// legal. A same-status transition is treated as legal and handled upstream
// as an idempotent no-op.
//
// The check is deliberately asymmetric: transitions away from any status
// other than active are accepted as reported, because the gateway is
// trusted for low-risk states and its feed is not strictly ordered.
// Transitions away from active are constrained to the table so that an
// out-of-order or malformed event cannot clobber a paying subscription
// with an invalid successor.
func CanTransition(current, proposed Status) bool {
	if current == proposed {
		return true
	}
	if current != StatusActive {
		return true
	}
	for _, next := range transitions[current] {
		if next == proposed {
			return true
		}
	}
	return false
}

// AllowedNext returns the table row for the given status. The returned
// slice is a copy; callers may mutate it freely.
func AllowedNext(current Status) []Status {
	row, ok := transitions[current]
	if !ok {
		return nil
	}
	out := make([]Status, len(row))
	copy(out, row)
	return out
}

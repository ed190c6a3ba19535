package webhookauth

import "time"

// DefaultTolerance bounds how far a webhook's embedded timestamp may drift
// from the current time before the delivery is treated as a replay.
const DefaultTolerance = 5 * time.Minute

// ReplayGuard rejects stale or replayed webhook deliveries. It is invoked
// by every signature scheme after the signature itself checks out.
type ReplayGuard struct {
	tolerance time.Duration
	now       func() time.Time
}

func NewReplayGuard(tolerance time.Duration) *ReplayGuard {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &ReplayGuard{tolerance: tolerance, now: time.Now}
}

// Allow reports whether issuedAt falls within the tolerance window on
// either side of now. A zero issuedAt is rejected: a payload without a
// parseable timestamp never passes the guard.
func (g *ReplayGuard) Allow(issuedAt time.Time) bool {
	if issuedAt.IsZero() {
		return false
	}
	drift := g.now().Sub(issuedAt)
	if drift < 0 {
		drift = -drift
	}
	return drift <= g.tolerance
}

package shared

import "time"

// DefaultHeartbeatTimeout is the window after the last heartbeat during which
// an account without a live session is still considered online. Browser tabs
// in the background throttle timers heavily, hence the long window.
const DefaultHeartbeatTimeout = 180 * time.Second

// IsFresh reports whether lastSeenAt is within timeout of now.
// A zero lastSeenAt is never fresh.
func IsFresh(lastSeenAt, now time.Time, timeout time.Duration) bool {
	if lastSeenAt.IsZero() {
		return false
	}
	return now.Sub(lastSeenAt) < timeout
}

// IsExpired reports whether a deadline of since+ttl has passed at now.
// A non-positive ttl never expires.
func IsExpired(since, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(since.Add(ttl))
}

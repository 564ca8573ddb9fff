package instantly

import (
	"math/rand"
	"strconv"
	"time"
)

const (
	backoffBase      = 500 * time.Millisecond
	backoffCap       = 10 * time.Second
	backoffJitterMax = 250 * time.Millisecond

	// Used when a Retry-After header is present but not a plain
	// integer of seconds (e.g. an HTTP date).
	throttleFallback = 5 * time.Second
)

// Backoff computes retry delays and tracks the server-mandated throttle
// window. It is not safe for concurrent use; the owning Client serializes
// access.
type Backoff struct {
	resumeNotBefore time.Time

	now func() time.Time
}

// NewBackoff creates a Backoff with a real clock.
func NewBackoff() *Backoff {
	return &Backoff{now: time.Now}
}

// NextDelay returns how long to sleep before retry number attempt (0-based):
// min(cap, base * 2^attempt) plus uniform jitter.
func (b *Backoff) NextDelay(attempt int) time.Duration {
	d := backoffCap
	if attempt < 10 {
		if exp := backoffBase << uint(attempt); exp < backoffCap {
			d = exp
		}
	}
	return d + time.Duration(rand.Int63n(int64(backoffJitterMax)))
}

// ObserveThrottle records a server throttle signal. The hint is the raw
// Retry-After header value; any integer is honored as seconds (non-positive
// values expire immediately), anything else falls back to a fixed window.
// An absent hint leaves the window untouched.
func (b *Backoff) ObserveThrottle(hint string) {
	if hint == "" {
		return
	}
	wait := throttleFallback
	if secs, err := strconv.Atoi(hint); err == nil {
		wait = time.Duration(secs) * time.Second
	}
	b.resumeNotBefore = b.now().Add(wait)
}

// TimeUntilAllowed returns the remaining throttle window, or zero when
// requests may proceed.
func (b *Backoff) TimeUntilAllowed() time.Duration {
	if d := b.resumeNotBefore.Sub(b.now()); d > 0 {
		return d
	}
	return 0
}

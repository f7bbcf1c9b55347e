package coordinator

import (
	"math"
	"math/rand/v2"
	"time"
)

// maxBackoff caps delays when Max is unset, leaving room for jitter.
const maxBackoff = time.Duration(math.MaxInt64 / 2)

// Backoff computes retry delays that double per attempt and add up to 50%
// of the base delay as random jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Rand returns a value in [0,1). Defaults to math/rand/v2.
	Rand func() float64
}

// DefaultBackoff starts at 2s and never exceeds 60s before jitter.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Max: 60 * time.Second}
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.Base <= 0 {
		return 0
	}

	limit := b.Max
	if limit <= 0 || limit > maxBackoff {
		limit = maxBackoff
	}

	d := b.Base
	for i := 1; i < attempt; i++ {
		if d > limit/2 {
			d = limit
			break
		}
		d *= 2
	}
	if d > limit {
		d = limit
	}

	r := b.Rand
	if r == nil {
		r = rand.Float64
	}
	return d + time.Duration(r()*0.5*float64(d))
}

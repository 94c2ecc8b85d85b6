package resilience

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestProperty_DelayNeverExceedsMaxDelay checks the invariant Delay's doc
// comment states: delay = min(max_delay, base * 2^attempt), for arbitrary
// bases, caps, and attempt counts.
func TestProperty_DelayNeverExceedsMaxDelay(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := time.Duration(rapid.IntRange(1, int(time.Second))).Draw(rt, "base")
		maxDelay := time.Duration(rapid.IntRange(int(base), int(time.Hour))).Draw(rt, "maxDelay")
		attempt := rapid.IntRange(0, 32).Draw(rt, "attempt")

		p := RetryPolicy{Base: base, MaxDelay: maxDelay}
		d := p.Delay(attempt)

		if d > maxDelay {
			rt.Fatalf("delay %v exceeded max_delay %v at attempt %d", d, maxDelay, attempt)
		}
		if d < 0 {
			rt.Fatalf("delay went negative: %v", d)
		}
	})
}

// TestProperty_DelayMonotonicInAttempt checks that, while still under the
// cap, increasing the attempt number never decreases the computed delay.
func TestProperty_DelayMonotonicInAttempt(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		base := time.Duration(rapid.IntRange(1, int(time.Second))).Draw(rt, "base")
		maxDelay := time.Duration(rapid.IntRange(int(base), int(time.Hour))).Draw(rt, "maxDelay")
		attempt := rapid.IntRange(0, 20).Draw(rt, "attempt")

		p := RetryPolicy{Base: base, MaxDelay: maxDelay}
		d1 := p.Delay(attempt)
		d2 := p.Delay(attempt + 1)

		if d2 < d1 {
			rt.Fatalf("delay decreased from attempt %d (%v) to %d (%v)", attempt, d1, attempt+1, d2)
		}
	})
}

package resilience

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestProperty_NormalizeClampsToHardBounds checks Normalize's documented
// bounds hold for arbitrary, possibly out-of-range, input policies.
func TestProperty_NormalizeClampsToHardBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("Normalize output always satisfies spec bounds", prop.ForAll(
		func(maxRetries int, baseMillis int, maxDelaySeconds int) bool {
			p := RetryPolicy{
				MaxRetries: maxRetries,
				Base:       time.Duration(baseMillis) * time.Millisecond,
				MaxDelay:   time.Duration(maxDelaySeconds) * time.Second,
			}
			n := p.Normalize()

			if n.MaxRetries < 0 || n.MaxRetries > HardMaxRetries {
				return false
			}
			if n.Base < 100*time.Millisecond {
				return false
			}
			if n.MaxDelay > 120*time.Second {
				return false
			}
			if n.MaxDelay < n.Base {
				return false
			}
			return true
		},
		gen.IntRange(-100, 1000),
		gen.IntRange(-1000, 500000),
		gen.IntRange(-100, 1000),
	))

	properties.TestingRun(t)
}

package retry

import (
	"fmt"
	"math"
	"time"
)

// Policy configures exponential backoff.
type Policy struct {
	MaxRetries    int           `mapstructure:"max_retries"`    // retries after the first attempt
	InitialDelay  time.Duration `mapstructure:"initial_delay"`  // delay before the first retry
	MaxDelay      time.Duration `mapstructure:"max_delay"`      // cap for any single delay
	BackoffFactor float64       `mapstructure:"backoff_factor"` // multiplier per retry
}

// DefaultPolicy returns 3 retries starting at 1s, doubling, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
	}
}

// Delay returns the wait before retry number attempt+1, where attempt is the
// zero-based index of the attempt that just failed:
//
//	min(InitialDelay * BackoffFactor^attempt, MaxDelay)
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if math.IsInf(d, 0) || math.IsNaN(d) || d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Validate checks that the policy is usable.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", p.MaxRetries)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0 (got %s)", p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("max_delay (%s) must be >= initial_delay (%s)", p.MaxDelay, p.InitialDelay)
	}
	if p.BackoffFactor < 1 {
		return fmt.Errorf("backoff_factor must be >= 1 (got %g)", p.BackoffFactor)
	}
	return nil
}

// Package lockout tracks failed authentication attempts and applies a
// temporary lockout once a threshold is crossed, keyed by user and
// remote address. It is decoupled from the verification logic so the
// session core stays a pure state machine.
package lockout

import (
	"context"
	"time"
)

// Lockout policy.
const (
	// Threshold is how many consecutive failures trigger a lockout.
	Threshold = 5
	// BaseDuration is the first lockout length; it doubles per
	// additional failure beyond the threshold.
	BaseDuration = time.Minute
	// MaxDuration caps the lockout length.
	MaxDuration = 15 * time.Minute
	// failureWindow is how long a failure streak is remembered.
	failureWindow = 30 * time.Minute
)

// Limiter counts failed attempts and reports lockout state.
type Limiter interface {
	// Locked reports whether key is currently locked out.
	Locked(ctx context.Context, key string) (bool, error)
	// Fail records a failed attempt and returns whether key is now
	// locked out.
	Fail(ctx context.Context, key string) (bool, error)
	// Reset clears the failure streak for key after a success.
	Reset(ctx context.Context, key string) error
}

// durationFor returns the lockout length for a failure count at or
// beyond the threshold.
func durationFor(failures int64) time.Duration {
	d := BaseDuration
	for i := Threshold; i < int(failures) && d < MaxDuration; i++ {
		d *= 2
	}
	if d > MaxDuration {
		d = MaxDuration
	}
	return d
}

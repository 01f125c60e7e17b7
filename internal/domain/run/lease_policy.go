// Package run holds engine-level policy for run leasing.
package run

import (
	"fmt"
	"time"

	apperrors "github.com/target/runplane/internal/errors"
)

// LeasePolicy bounds the lease duration a worker may request when a run
// is assigned to it.
type LeasePolicy struct {
	min time.Duration
	max time.Duration
}

// NewLeasePolicy builds a policy from the configured bounds.
func NewLeasePolicy(min, max time.Duration) (LeasePolicy, error) {
	if min <= 0 {
		return LeasePolicy{}, fmt.Errorf("minimum lease duration must be positive, got %v", min)
	}
	if max < min {
		return LeasePolicy{}, fmt.Errorf("maximum lease duration %v is below minimum %v", max, min)
	}
	return LeasePolicy{min: min, max: max}, nil
}

// Validate rejects lease durations outside the configured bounds.
func (p LeasePolicy) Validate(d time.Duration) error {
	if d < p.min || d > p.max {
		return apperrors.ValidationField(
			"lease_duration",
			fmt.Sprintf("lease duration must be between %v and %v", p.min, p.max),
		)
	}
	return nil
}

// Min returns the lower bound.
func (p LeasePolicy) Min() time.Duration { return p.min }

// Max returns the upper bound.
func (p LeasePolicy) Max() time.Duration { return p.max }

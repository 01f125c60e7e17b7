// Package cron evaluates five-field cron expressions against UTC time.
package cron

import (
	"time"

	robfig "github.com/robfig/cron/v3"

	apperrors "github.com/target/runplane/internal/errors"
)

// parser accepts the standard five-field format: minute, hour, day of
// month, month, day of week. No seconds field, no descriptors.
var parser = robfig.NewParser(
	robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow,
)

// Validate reports whether expr is a well-formed cron expression.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return apperrors.InvalidCronf("invalid cron expression %q: %v", expr, err)
	}
	return nil
}

// Next returns the first instant matching expr strictly after t, in UTC.
// Expressions that never fire (robfig reports these as the zero time when
// no activation exists within five years, e.g. "0 0 30 2 *") are rejected.
func Next(expr string, t time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, apperrors.InvalidCronf("invalid cron expression %q: %v", expr, err)
	}
	next := sched.Next(t.UTC())
	if next.IsZero() {
		return time.Time{}, apperrors.InvalidCronf("cron expression %q never fires", expr)
	}
	return next.UTC(), nil
}

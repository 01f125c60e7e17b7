package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job lookup matches no row.
	ErrJobNotFound = errors.New("job not found")
	// ErrScheduleNotFound is returned when a schedule lookup matches no row.
	ErrScheduleNotFound = errors.New("job schedule not found")
	// ErrRunNotFound is returned when a run lookup matches no row.
	ErrRunNotFound = errors.New("job run not found")
	// ErrRunNotAssignable is returned when the conditional assignment
	// update matches no row: the run is missing, completed, not yet due,
	// or leased by another worker.
	ErrRunNotAssignable = errors.New("job run not assignable")
	// ErrRunNotCompletable is returned when the conditional completion
	// update matches no row: the run is missing, not in progress, leased
	// by another worker, or its lease has expired.
	ErrRunNotCompletable = errors.New("job run not completable")
)

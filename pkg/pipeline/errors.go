package pipeline

import (
	"errors"
	"fmt"
)

// InsufficientDataError reports that too few valid frames remain after
// censoring. It is a deliberate early termination, not a defect: the run
// writes no derivatives and is excluded from any concatenation group, while
// sibling runs continue unaffected.
type InsufficientDataError struct {
	Valid    int
	Required int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient low-motion data: %d valid frames remain, %d required", e.Valid, e.Required)
}

// IsInsufficientData reports whether err is (or wraps) an
// InsufficientDataError, so callers can distinguish the early-termination
// policy from computation failures.
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

// DegeneracyError reports a numerical problem detected during a run:
// rank-deficient designs that could not be solved, or NaN/Inf appearing in
// an intermediate matrix. It is detected explicitly and reported per run,
// never allowed to propagate silently into output files.
type DegeneracyError struct {
	Stage string
	Err   error
}

func (e *DegeneracyError) Error() string {
	return fmt.Sprintf("numerical degeneracy in %s: %v", e.Stage, e.Err)
}

func (e *DegeneracyError) Unwrap() error { return e.Err }

// ErrIncompleteGroup is returned when a concatenation group contains a run
// that did not complete the pipeline; no partial concatenation is produced.
var ErrIncompleteGroup = errors.New("concatenation group contains an incomplete run")

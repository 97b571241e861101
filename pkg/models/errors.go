package models

import "fmt"

// InsufficientDataError reports that a pipeline stage was given too few
// sensor observations to proceed. It is an input-data problem, not a
// transient fault: callers should fall back to a coarser product or
// skip the field rather than retry.
type InsufficientDataError struct {
	// Stage is the component that failed: "trend", "variogram",
	// "kriging" or "validation".
	Stage string
	Need  int
	Got   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need at least %d observations, got %d", e.Stage, e.Need, e.Got)
}

// InvalidBoundsError reports a degenerate bounding box or non-positive
// resolution. Caller error; never retried.
type InvalidBoundsError struct {
	Reason string
}

func (e *InvalidBoundsError) Error() string {
	return "invalid bounds: " + e.Reason
}

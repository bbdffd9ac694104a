package persona

import "errors"

var (
	// ErrNilAction is returned when a nil action reaches the pipeline.
	ErrNilAction = errors.New("persona: nil action")
	// ErrInvalidAction is returned when an action carries NaN or Inf.
	ErrInvalidAction = errors.New("persona: invalid numeric value in action")
	// ErrQueueFull is returned when the processing queue is at capacity.
	ErrQueueFull = errors.New("persona: action queue full")
	// ErrCorruptSnapshot is returned when a persisted snapshot fails
	// structural or range validation.
	ErrCorruptSnapshot = errors.New("persona: corrupt snapshot")
)

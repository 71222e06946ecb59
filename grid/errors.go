package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGroup is returned for an empty group or a group whose
	// boundaries are inconsistent with the sample store.
	ErrInvalidGroup = errors.New("invalid group")

	// ErrInvalidDims is returned for grid dimensions that are not three
	// positive extents within MaxGridDim.
	ErrInvalidDims = errors.New("invalid grid dims")

	// ErrTooLarge is returned when a slice image would exceed the render
	// pixel budget.
	ErrTooLarge = errors.New("too large")
)

// GroupError reports which output grid point failed to merge.
//
// It always matches ErrInvalidGroup via errors.Is; the underlying detail
// (if any) can be accessed via errors.Unwrap.
type GroupError struct {
	Index int
	Range Range
	cause error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("group %d [%d,%d): %v", e.Index, e.Range.Start, e.Range.End, e.cause)
}

func (e *GroupError) Unwrap() error { return e.cause }

// invalidGroupf builds an error wrapping ErrInvalidGroup with detail.
func invalidGroupf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGroup, fmt.Sprintf(format, args...))
}

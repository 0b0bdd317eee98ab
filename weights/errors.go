package weights

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvariant is wrapped by every InvariantError.
	ErrInvariant = errors.New("weights: invariant violated")
	// ErrShape reports a gradient or row set that does not match the table.
	ErrShape = errors.New("weights: shape mismatch")
)

// InvariantError is a weight found outside its valid range after the
// corrective operations ran. It is a bug, not a data problem.
type InvariantError struct {
	Unit      string
	ID        int
	Component int
	Value     float64
	Reason    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("weights: unit %q (id %d, component %d) = %g: %s", e.Unit, e.ID, e.Component, e.Value, e.Reason)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

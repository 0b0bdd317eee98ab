package dp

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrShape reports weights or counts that do not line up with the lattice.
	ErrShape = errors.New("dp: shape mismatch")
	// ErrInvariant is wrapped by every InvariantError.
	ErrInvariant = errors.New("dp: numerical invariant violated")
)

// InvariantError carries the diagnostic snapshot of a broken numerical
// invariant: which example, which tensor and the offending values.
type InvariantError struct {
	Example int // -1 for batch-level values such as the loss
	Tensor  string
	Values  []float64
	Reason  string
}

func (e *InvariantError) Error() string {
	vals := e.Values
	if len(vals) > 8 {
		vals = vals[:8]
	}
	if e.Example < 0 {
		return fmt.Sprintf("dp: batch %s: %s (values %v)", e.Tensor, e.Reason, vals)
	}
	return fmt.Sprintf("dp: example %d, %s: %s (values %v)", e.Example, e.Tensor, e.Reason, vals)
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

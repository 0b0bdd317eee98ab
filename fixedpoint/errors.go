package fixedpoint

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrShape reports scorer output that does not cover the lattice.
	ErrShape = errors.New("fixedpoint: shape mismatch")
	// ErrNotConverged is wrapped by every NonConvergenceError.
	ErrNotConverged = errors.New("fixedpoint: did not converge")
)

// NonConvergenceError is the soft failure of a run that hit its round cap.
// The run still returns its final-round weights.
type NonConvergenceError struct {
	TraceID   uuid.UUID
	Rounds    int
	Residuals []float64
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("fixedpoint: run %s did not converge in %d rounds, residuals %v", e.TraceID, e.Rounds, e.Residuals)
}

func (e *NonConvergenceError) Unwrap() error { return ErrNotConverged }

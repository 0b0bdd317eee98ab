package lattice

import "github.com/pkg/errors"

// ErrShape indicates inconsistent lattice dimensions.
var ErrShape = errors.New("lattice: invalid shape")

package dictionary

import "github.com/pkg/errors"

var (
	// ErrDuplicateUnit indicates the same unit string was given twice.
	ErrDuplicateUnit = errors.New("dictionary: duplicate unit")
	// ErrEmptyUnit indicates an empty unit string.
	ErrEmptyUnit = errors.New("dictionary: empty unit")
	// ErrUnitTooLong indicates a unit longer than the configured maximum.
	ErrUnitTooLong = errors.New("dictionary: unit longer than max unit length")
	// ErrMissingPad indicates no padding token was configured.
	ErrMissingPad = errors.New("dictionary: padding token is required")
)

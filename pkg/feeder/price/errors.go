// Package price resolves the value the oracle updater pushes.
package price

import "errors"

var (
	// ErrNoPriceColumn indicates a history row without any recognized price column.
	ErrNoPriceColumn = errors.New("no recognized price column")
	// ErrInvalidPrice indicates a price cell that is not a number.
	ErrInvalidPrice = errors.New("invalid price value")
)

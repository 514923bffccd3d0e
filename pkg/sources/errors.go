// Package sources loads and normalizes provider price observations.
package sources

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData indicates that no usable observation was found.
	ErrNoData = errors.New("no usable price observations")
	// ErrMalformedFile indicates an observation file that is not valid JSON of the expected shape.
	ErrMalformedFile = errors.New("malformed observation file")
)

// ParseError is returned when a price string holds no numeric token.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("no numeric price in %q", e.Input)
}

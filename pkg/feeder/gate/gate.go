// Package gate decides whether a newly computed index may be published.
package gate

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/StrathCole/gpu-index/pkg/metrics"
)

// DefaultTolerance is the allowed relative move from the previous value.
const DefaultTolerance = 0.20

// ErrNonPositive indicates an index value that is zero or negative.
var ErrNonPositive = errors.New("index price must be positive")

// Bounds is the inclusive accepted range.
type Bounds struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Contains reports whether v lies within the bounds, inclusive.
func (b Bounds) Contains(v float64) bool {
	return b.Low <= v && v <= b.High
}

// Decision is the outcome of one gate check. It is never persisted.
type Decision struct {
	Accepted bool     `json:"accepted"`
	Price    float64  `json:"price"`
	Previous *float64 `json:"previous,omitempty"`
	Bounds   *Bounds  `json:"bounds,omitempty"`
}

// ValidationError is returned when the gate rejects a price.
type ValidationError struct {
	Price    float64
	Previous *float64
	Bounds   *Bounds
	Reason   error
}

func (e *ValidationError) Error() string {
	if e.Bounds == nil || e.Previous == nil {
		return fmt.Sprintf("index %.6f rejected: %v", e.Price, e.Reason)
	}
	return fmt.Sprintf("index %.6f outside [%.6f, %.6f] around previous %.6f",
		e.Price, e.Bounds.Low, e.Bounds.High, *e.Previous)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// ErrOutOfBounds indicates a move larger than the tolerance.
var ErrOutOfBounds = errors.New("price moved beyond tolerance")

// Gate is a fail-closed drift check against the last accepted value.
type Gate struct {
	tolerance float64
	logger    zerolog.Logger
}

// New creates a gate. A tolerance outside (0, 1) selects DefaultTolerance.
func New(tolerance float64, logger zerolog.Logger) *Gate {
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = DefaultTolerance
	}
	return &Gate{
		tolerance: tolerance,
		logger:    logger.With().Str("component", "gate").Logger(),
	}
}

// BoundsFor returns the accepted range around previous.
func (g *Gate) BoundsFor(previous float64) Bounds {
	return Bounds{
		Low:  previous * (1 - g.tolerance),
		High: previous * (1 + g.tolerance),
	}
}

// Accept checks price against previous. A nil previous accepts any positive
// price. A rejection returns the decision together with *ValidationError.
func (g *Gate) Accept(price float64, previous *float64) (Decision, error) {
	d := Decision{Price: price, Previous: previous}

	if price <= 0 {
		metrics.RecordGateDecision(false)
		g.logger.Error().Float64("price", price).Msg("Rejecting non-positive index")
		return d, &ValidationError{Price: price, Previous: previous, Reason: ErrNonPositive}
	}

	if previous == nil {
		d.Accepted = true
		metrics.RecordGateDecision(true)
		g.logger.Info().Float64("price", price).Msg("No previous value, accepting")
		return d, nil
	}

	b := g.BoundsFor(*previous)
	d.Bounds = &b

	if !b.Contains(price) {
		metrics.RecordGateDecision(false)
		g.logger.Error().
			Float64("price", price).
			Float64("previous", *previous).
			Float64("low", b.Low).
			Float64("high", b.High).
			Msg("Index outside drift bounds, refusing to publish")
		return d, &ValidationError{Price: price, Previous: previous, Bounds: &b, Reason: ErrOutOfBounds}
	}

	d.Accepted = true
	metrics.RecordGateDecision(true)
	g.logger.Info().
		Float64("price", price).
		Float64("previous", *previous).
		Float64("low", b.Low).
		Float64("high", b.High).
		Msg("Index within drift bounds")
	return d, nil
}

package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/gpu-index/pkg/logging"
)

func ptr(v float64) *float64 { return &v }

func TestGate_Accept(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		previous *float64
		accepted bool
	}{
		{name: "bootstrap", price: 0.42, previous: nil, accepted: true},
		{name: "unchanged", price: 0.50, previous: ptr(0.50), accepted: true},
		{name: "upper bound inclusive", price: 0.60, previous: ptr(0.50), accepted: true},
		{name: "lower bound inclusive", price: 0.40, previous: ptr(0.50), accepted: true},
		{name: "above upper bound", price: 0.61, previous: ptr(0.50), accepted: false},
		{name: "below lower bound", price: 0.39, previous: ptr(0.50), accepted: false},
		{name: "zero with previous", price: 0, previous: ptr(0.50), accepted: false},
		{name: "zero on bootstrap", price: 0, previous: nil, accepted: false},
	}

	g := New(DefaultTolerance, logging.NewNoopLogger().ZerologLogger())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := g.Accept(tt.price, tt.previous)
			assert.Equal(t, tt.accepted, d.Accepted)
			if tt.accepted {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.price, verr.Price)
			assert.Equal(t, tt.previous, verr.Previous)
		})
	}
}

func TestGate_RejectionCarriesBounds(t *testing.T) {
	g := New(0.2, logging.NewNoopLogger().ZerologLogger())

	d, err := g.Accept(0.61, ptr(0.50))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.NotNil(t, verr.Bounds)
	assert.InDelta(t, 0.40, verr.Bounds.Low, 1e-12)
	assert.InDelta(t, 0.60, verr.Bounds.High, 1e-12)
	assert.Equal(t, verr.Bounds, d.Bounds)
	assert.Contains(t, err.Error(), "outside")
}

func TestGate_NonPositive(t *testing.T) {
	g := New(0.2, logging.NewNoopLogger().ZerologLogger())

	_, err := g.Accept(-1, nil)
	assert.ErrorIs(t, err, ErrNonPositive)
}

func TestNew_InvalidToleranceUsesDefault(t *testing.T) {
	g := New(5, logging.NewNoopLogger().ZerologLogger())
	b := g.BoundsFor(1)
	assert.InDelta(t, 0.8, b.Low, 1e-12)
	assert.InDelta(t, 1.2, b.High, 1e-12)
}

package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/gpu-index/pkg/logging"
	"github.com/StrathCole/gpu-index/pkg/sources"
	"github.com/StrathCole/gpu-index/pkg/sources/sourcestest"
)

func newTestCalculator() *Calculator {
	calc := NewCalculator(DefaultRegistry(), logging.NewNoopLogger().ZerologLogger())
	calc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return calc
}

func TestCalculator_GoldenValue(t *testing.T) {
	obs := sourcestest.FromPrices("AWS", 1.00, "Azure", 1.50, "GCP", 1.20, "Vast.ai", 0.12)

	snap := newTestCalculator().Compute(obs)

	// Reference values computed with the same IEEE-754 operation order.
	assert.Equal(t, 0.4235400000000001, snap.HyperscalerComponent)
	assert.Equal(t, 0.041999999999999996, snap.NeocloudComponent)
	assert.Equal(t, 0.46554000000000006, snap.FinalPrice)
	assert.Equal(t, 1.0, snap.RenormalizationFactor)
	assert.Equal(t, 1.0, snap.HyperscalerWeightUsed)

	require.Len(t, snap.Hyperscalers, 3)
	assert.Equal(t, []string{"AWS", "Azure", "GCP"}, providers(snap.Hyperscalers))
	assert.Equal(t, 0.6480000000000001, snap.Hyperscalers[0].EffectivePrice)
	assert.Equal(t, 0.72, snap.Hyperscalers[1].EffectivePrice)

	require.Len(t, snap.Neoclouds, 1)
	assert.Equal(t, "Vast.ai", snap.Neoclouds[0].Provider)
	assert.Equal(t, 1.0, snap.Neoclouds[0].NormalizedWeight)
}

func TestCalculator_DiscountBlend(t *testing.T) {
	snap := newTestCalculator().Compute(sourcestest.FromPrices("AWS", 1.00))

	require.Len(t, snap.Hyperscalers, 1)
	assert.InDelta(t, 0.648, snap.Hyperscalers[0].EffectivePrice, 1e-12)
	assert.InDelta(t, 0.56, snap.Hyperscalers[0].DiscountedPrice, 1e-12)
}

func TestCalculator_FullHyperscalerSetNotScaled(t *testing.T) {
	snap := newTestCalculator().Compute(sourcestest.FromPrices("AWS", 1.0, "Azure", 1.0, "GCP", 1.0))

	var sum float64
	for _, c := range snap.Hyperscalers {
		sum += c.Contribution
	}
	assert.Equal(t, 1.0, snap.HyperscalerWeightUsed)
	assert.Equal(t, 1.0, snap.RenormalizationFactor)
	assert.Equal(t, sum, snap.HyperscalerComponent)
}

func TestCalculator_SingleHyperscalerRenormalized(t *testing.T) {
	snap := newTestCalculator().Compute(sourcestest.FromPrices("AWS", 1.00))

	// Same provider with its weight scaled to 1.0.
	effective := 1.00*(1-0.44)*DiscountedShare + 1.00*ListPriceShare
	expected := effective * 1.0 * HyperscalerShare

	assert.InDelta(t, 0.45, snap.HyperscalerWeightUsed, 1e-12)
	assert.InDelta(t, 1/0.45, snap.RenormalizationFactor, 1e-12)
	assert.InDelta(t, expected, snap.HyperscalerComponent, 1e-12)
	assert.Equal(t, 0.0, snap.NeocloudComponent)
	assert.InDelta(t, expected, snap.FinalPrice, 1e-12)
}

func TestCalculator_NeocloudWeightsSumToOne(t *testing.T) {
	tests := []struct {
		name string
		obs  *sources.Observations
	}{
		{
			name: "registered only",
			obs:  sourcestest.FromPrices("Vast.ai", 0.12, "Paperspace", 0.45, "Replicate", 0.81),
		},
		{
			name: "mixed with defaults",
			obs:  sourcestest.FromPrices("Vast.ai", 0.12, "Some New Cloud", 0.30, "Another", 0.50, "NeevCloud", 0.40),
		},
		{
			name: "single default",
			obs:  sourcestest.FromPrices("Unknown GPU Co", 0.33),
		},
		{
			name: "all registered",
			obs: sourcestest.FromPrices(
				"Alibaba Cloud", 0.90, "Tencent Cloud", 0.80, "Vast.ai", 0.12, "Paperspace", 0.45,
				"Replicate", 0.81, "Thunder Compute", 0.27, "Cerebrium", 0.59, "NeevCloud", 0.40,
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := newTestCalculator().Compute(tt.obs)
			require.NotEmpty(t, snap.Neoclouds)

			var total, contrib float64
			for _, c := range snap.Neoclouds {
				total += c.NormalizedWeight
				contrib += c.Contribution
			}
			assert.InDelta(t, 1.0, total, 1e-9)
			assert.InDelta(t, snap.NeocloudComponent, contrib, 1e-12)
		})
	}
}

func TestCalculator_NeocloudRawWeights(t *testing.T) {
	snap := newTestCalculator().Compute(sourcestest.FromPrices("Vast.ai", 0.12, "Mystery Cloud", 0.30))

	require.Len(t, snap.Neoclouds, 2)
	assert.Equal(t, 0.15, snap.Neoclouds[0].Weight)
	assert.Equal(t, DefaultNeocloudWeight, snap.Neoclouds[1].Weight)
	assert.InDelta(t, 0.15/0.20, snap.Neoclouds[0].NormalizedWeight, 1e-12)
	assert.InDelta(t, 0.05/0.20, snap.Neoclouds[1].NormalizedWeight, 1e-12)
}

func TestCalculator_ExcludesPseudoProviders(t *testing.T) {
	snap := newTestCalculator().Compute(sourcestest.FromPrices(
		"Vast.ai", 0.12,
		"GetDeploying Average", 0.40,
		"Market Average", 0.50,
		"average joe cloud", 0.20,
	))

	// Matching is case-sensitive, so the lower-case "average" stays in.
	assert.Equal(t, []string{"Vast.ai", "average joe cloud"}, providers(snap.Neoclouds))
}

func TestCalculator_HyperscalerSubstringFallback(t *testing.T) {
	snap := newTestCalculator().Compute(sourcestest.FromPrices("Azure Spot", 0.50, "Vast.ai", 0.12))

	require.Len(t, snap.Hyperscalers, 1)
	assert.Equal(t, "Azure", snap.Hyperscalers[0].Provider)
	assert.Equal(t, "Azure Spot", snap.Hyperscalers[0].ObservedKey)
	assert.Equal(t, 0.50, snap.Hyperscalers[0].OriginalPrice)

	// Only registered hyperscaler keys leave the neocloud set, so the
	// fallback key is priced in both components.
	require.Equal(t, []string{"Azure Spot", "Vast.ai"}, providers(snap.Neoclouds))
	assert.Equal(t, DefaultNeocloudWeight, snap.Neoclouds[0].Weight)
	assert.InDelta(t, 0.05/0.20, snap.Neoclouds[0].NormalizedWeight, 1e-12)
	assert.InDelta(t, 0.15/0.20, snap.Neoclouds[1].NormalizedWeight, 1e-12)

	expected := (0.50*0.25 + 0.12*0.75) * NeocloudShare
	assert.InDelta(t, expected, snap.NeocloudComponent, 1e-12)
	assert.InDelta(t, snap.HyperscalerComponent+expected, snap.FinalPrice, 1e-12)
}

func TestCalculator_ExactKeyPreferredOverFallback(t *testing.T) {
	snap := newTestCalculator().Compute(sourcestest.FromPrices("AWS Marketplace", 9.99, "AWS", 0.50))

	require.Len(t, snap.Hyperscalers, 1)
	assert.Equal(t, "AWS", snap.Hyperscalers[0].ObservedKey)
	assert.Equal(t, 0.50, snap.Hyperscalers[0].OriginalPrice)
	assert.Equal(t, []string{"AWS Marketplace"}, providers(snap.Neoclouds))
}

func TestCalculator_NoData(t *testing.T) {
	snap := newTestCalculator().Compute(sources.NewObservations())

	assert.True(t, snap.IsZero())
	assert.Equal(t, 0.0, snap.FinalPrice)
	assert.Equal(t, 0.0, snap.HyperscalerComponent)
	assert.Equal(t, 0.0, snap.NeocloudComponent)
	assert.Equal(t, 1.0, snap.RenormalizationFactor)
}

func TestCalculator_NonPositivePricesIgnored(t *testing.T) {
	obs := sources.NewObservations()
	tests := []struct {
		provider string
		price    float64
		stored   bool
	}{
		{"AWS", 0.0, false},
		{"Vast.ai", -1.0, false},
		{"Paperspace", 0.45, true},
	}
	for _, tt := range tests {
		stored := obs.Set(sources.Observation{Provider: tt.provider, RawName: tt.provider, Price: tt.price})
		assert.Equal(t, tt.stored, stored, tt.provider)
	}

	snap := newTestCalculator().Compute(obs)

	// AWS is neither found directly nor through the fallback.
	assert.Empty(t, snap.Hyperscalers)
	assert.Equal(t, 0.0, snap.HyperscalerWeightUsed)
	assert.Equal(t, []string{"Paperspace"}, providers(snap.Neoclouds))
	assert.InDelta(t, 0.45*NeocloudShare, snap.FinalPrice, 1e-12)
}

func TestRegistry(t *testing.T) {
	reg := DefaultRegistry()

	assert.True(t, reg.IsHyperscaler("AWS"))
	assert.False(t, reg.IsHyperscaler("aws"))

	w, matched := reg.NeocloudWeight("thunder compute (on-demand)")
	assert.Equal(t, 0.10, w)
	assert.Equal(t, "Thunder Compute", matched)

	w, matched = reg.NeocloudWeight("Lambda")
	assert.Equal(t, DefaultNeocloudWeight, w)
	assert.Empty(t, matched)

	_, err := NewRegistry(RegistryConfig{})
	assert.ErrorIs(t, err, ErrEmptyRegistry)

	// Callers cannot mutate the registry through returned slices.
	hs := reg.Hyperscalers()
	hs[0].Weight = 1
	assert.Equal(t, 0.45, reg.Hyperscalers()[0].Weight)
}

func providers(cs []Contribution) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Provider)
	}
	return out
}

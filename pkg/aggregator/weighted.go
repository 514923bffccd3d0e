package aggregator

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/StrathCole/gpu-index/pkg/metrics"
	"github.com/StrathCole/gpu-index/pkg/sources"
)

// Calculator computes the two-component weighted index.
type Calculator struct {
	registry *Registry
	logger   zerolog.Logger
	now      func() time.Time
}

// NewCalculator creates a calculator bound to an immutable registry.
func NewCalculator(registry *Registry, logger zerolog.Logger) *Calculator {
	return &Calculator{
		registry: registry,
		logger:   logger.With().Str("component", "calculator").Logger(),
		now:      time.Now,
	}
}

// Compute builds a snapshot from the observations. It never fails: with no
// usable data the result is a zero snapshot and the caller decides.
func (c *Calculator) Compute(obs *sources.Observations) *Snapshot {
	start := time.Now()

	snap := &Snapshot{
		Timestamp:             c.now(),
		RenormalizationFactor: 1,
	}

	c.computeHyperscalers(obs, snap)
	c.computeNeoclouds(obs, snap)

	snap.FinalPrice = snap.HyperscalerComponent + snap.NeocloudComponent

	c.logger.Info().
		Float64("final", snap.FinalPrice).
		Float64("hyperscaler", snap.HyperscalerComponent).
		Float64("neocloud", snap.NeocloudComponent).
		Int("providers", snap.ProviderCount()).
		Msg("Index computed")

	metrics.RecordIndex(snap.FinalPrice, snap.HyperscalerComponent, snap.NeocloudComponent, time.Since(start))
	return snap
}

// computeHyperscalers fills the hyperscaler component. A key matched by the
// substring fallback still takes part in the neocloud set.
func (c *Calculator) computeHyperscalers(obs *sources.Observations, snap *Snapshot) {
	var sum, used float64

	for _, hs := range c.registry.hyperscalers {
		key, price, ok := c.lookupHyperscaler(obs, hs.Key)
		if !ok {
			c.logger.Warn().Str("provider", hs.Key).Msg("Hyperscaler price not found")
			continue
		}
		discounted := price * (1 - hs.DiscountRate)
		effective := float64(discounted*DiscountedShare) + float64(price*ListPriceShare)
		contribution := float64(effective*hs.Weight) * HyperscalerShare

		sum += contribution
		used += hs.Weight

		snap.Hyperscalers = append(snap.Hyperscalers, Contribution{
			Provider:        hs.Key,
			Category:        CategoryHyperscaler,
			ObservedKey:     key,
			OriginalPrice:   price,
			DiscountRate:    hs.DiscountRate,
			DiscountedPrice: discounted,
			EffectivePrice:  effective,
			Weight:          hs.Weight,
			Contribution:    contribution,
		})

		c.logger.Debug().
			Str("provider", hs.Key).
			Float64("original", price).
			Float64("effective", effective).
			Float64("weight", hs.Weight).
			Float64("contribution", contribution).
			Msg("Hyperscaler contribution")
	}

	// Missing hyperscalers scale the whole sum instead of reweighting.
	if used > 0 && used < 1.0 {
		factor := 1.0 / used
		sum *= factor
		snap.RenormalizationFactor = factor
		c.logger.Warn().
			Float64("weight_used", used).
			Float64("factor", factor).
			Float64("sum", sum).
			Msg("Hyperscaler sum renormalized")
	}

	for i := range snap.Hyperscalers {
		if used > 0 {
			snap.Hyperscalers[i].NormalizedWeight = snap.Hyperscalers[i].Weight / used
		}
	}

	snap.HyperscalerComponent = sum
	snap.HyperscalerWeightUsed = used
}

// lookupHyperscaler finds the exact key first, then the first observed key
// containing it case-insensitively. Observations only hold positive prices.
func (c *Calculator) lookupHyperscaler(obs *sources.Observations, key string) (string, float64, bool) {
	if price, ok := obs.Price(key); ok {
		return key, price, true
	}

	lower := strings.ToLower(key)
	for _, k := range obs.Keys() {
		if !strings.Contains(strings.ToLower(k), lower) {
			continue
		}
		price, _ := obs.Price(k)
		c.logger.Warn().
			Str("provider", key).
			Str("matched_key", k).
			Msg("Hyperscaler matched by substring fallback")
		return k, price, true
	}
	return "", 0, false
}

func (c *Calculator) computeNeoclouds(obs *sources.Observations, snap *Snapshot) {
	var used float64

	for _, o := range obs.All() {
		if c.registry.IsHyperscaler(o.Provider) {
			continue
		}
		if IsExcluded(o.Provider) {
			c.logger.Debug().Str("provider", o.Provider).Msg("Skipping derived pseudo-provider")
			continue
		}

		weight, matched := c.registry.NeocloudWeight(o.Provider)
		switch {
		case matched == "":
			c.logger.Info().
				Str("provider", o.Provider).
				Float64("weight", weight).
				Msg("Unregistered neocloud, using default weight")
		case matched != o.Provider:
			c.logger.Info().
				Str("provider", o.Provider).
				Str("matched", matched).
				Msg("Neocloud weight matched by substring")
		}

		used += weight
		snap.Neoclouds = append(snap.Neoclouds, Contribution{
			Provider:        o.Provider,
			Category:        CategoryNeocloud,
			ObservedKey:     o.Provider,
			OriginalPrice:   o.Price,
			DiscountedPrice: o.Price,
			EffectivePrice:  o.Price,
			Weight:          weight,
		})
	}

	if used <= 0 {
		if len(snap.Neoclouds) == 0 {
			c.logger.Warn().Msg("No neocloud prices found")
		}
		snap.Neoclouds = nil
		return
	}

	var sum float64
	for i := range snap.Neoclouds {
		nc := &snap.Neoclouds[i]
		nc.NormalizedWeight = nc.Weight / used
		nc.Contribution = float64(nc.OriginalPrice*nc.NormalizedWeight) * NeocloudShare
		sum += nc.Contribution
	}

	snap.NeocloudComponent = sum
	snap.NeocloudWeightUsed = used
}

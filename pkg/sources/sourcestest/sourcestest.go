// Package sourcestest provides observation fixtures for tests.
package sourcestest

import "github.com/StrathCole/gpu-index/pkg/sources"

// FromPrices builds a set from alternating provider name and float64 price
// arguments, in the given order. Pairs of the wrong type are skipped.
func FromPrices(pairs ...interface{}) *sources.Observations {
	obs := sources.NewObservations()
	for i := 0; i < len(pairs)-1; i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			continue
		}
		price, ok := pairs[i+1].(float64)
		if !ok {
			continue
		}
		obs.Set(sources.Observation{Provider: name, RawName: name, Price: price, Source: sources.SourceTypeDirect})
	}
	return obs
}

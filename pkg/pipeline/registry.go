package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/StrathCole/gpu-index/pkg/aggregator"
	"github.com/StrathCole/gpu-index/pkg/config"
	"github.com/StrathCole/gpu-index/pkg/sources"
)

// RegistryFromConfig builds the calculator registry. Each empty list keeps
// the built-in entries of that category.
func RegistryFromConfig(cfg config.RegistryConfig) (*aggregator.Registry, error) {
	builtin := aggregator.DefaultRegistry()

	rc := aggregator.RegistryConfig{
		Hyperscalers:          builtin.Hyperscalers(),
		Neoclouds:             builtin.Neoclouds(),
		DefaultNeocloudWeight: cfg.DefaultNeocloudWeight,
	}

	if len(cfg.Hyperscalers) > 0 {
		rc.Hyperscalers = make([]aggregator.Provider, 0, len(cfg.Hyperscalers))
		for _, hs := range cfg.Hyperscalers {
			discount := cfg.DefaultDiscount
			if hs.Discount != nil {
				discount = *hs.Discount
			}
			rc.Hyperscalers = append(rc.Hyperscalers, aggregator.Provider{
				Key:          hs.Name,
				DiscountRate: discount,
				Weight:       hs.Weight,
			})
		}
	}

	if len(cfg.Neoclouds) > 0 {
		rc.Neoclouds = make([]aggregator.Provider, 0, len(cfg.Neoclouds))
		for _, nc := range cfg.Neoclouds {
			rc.Neoclouds = append(rc.Neoclouds, aggregator.Provider{Key: nc.Name, Weight: nc.Weight})
		}
	}

	return aggregator.NewRegistry(rc)
}

// NormalizerFromConfig builds the provider normalizer. No configured aliases
// selects the built-in table.
func NormalizerFromConfig(cfg config.RegistryConfig, logger zerolog.Logger) *sources.Normalizer {
	if len(cfg.Aliases) == 0 {
		return sources.NewNormalizer(nil, logger)
	}
	aliases := make([]sources.Alias, 0, len(cfg.Aliases))
	for _, a := range cfg.Aliases {
		aliases = append(aliases, sources.Alias{Alias: a.Alias, Canonical: a.Canonical})
	}
	return sources.NewNormalizer(aliases, logger)
}

package aggregator

import (
	"fmt"
	"strings"
)

// Category groups providers into the two index components.
type Category string

const (
	// CategoryHyperscaler covers the large public clouds.
	CategoryHyperscaler Category = "hyperscaler"
	// CategoryNeocloud covers every other provider.
	CategoryNeocloud Category = "neocloud"
)

// Component and blend weights of the index.
const (
	HyperscalerShare = 0.65
	NeocloudShare    = 0.35
	DiscountedShare  = 0.80
	ListPriceShare   = 0.20

	DefaultNeocloudWeight      = 0.05
	DefaultHyperscalerDiscount = 0.30
)

// excludedMarkers flag derived rows (aggregator averages) that are not
// real providers. Matching is case-sensitive.
var excludedMarkers = []string{"GetDeploying", "Average"}

// Provider is one registry entry.
type Provider struct {
	Key          string
	Category     Category
	DiscountRate float64
	Weight       float64
}

// RegistryConfig is the input to NewRegistry.
type RegistryConfig struct {
	Hyperscalers          []Provider
	Neoclouds             []Provider
	DefaultNeocloudWeight float64
}

// Registry is the immutable provider table the calculator runs against.
type Registry struct {
	hyperscalers          []Provider
	neoclouds             []Provider
	defaultNeocloudWeight float64
}

// DefaultRegistry returns the built-in registry.
func DefaultRegistry() *Registry {
	reg, err := NewRegistry(RegistryConfig{
		Hyperscalers: []Provider{
			{Key: "AWS", DiscountRate: 0.44, Weight: 0.45},
			{Key: "Azure", DiscountRate: 0.65, Weight: 0.30},
			{Key: "GCP", DiscountRate: 0.65, Weight: 0.25},
		},
		Neoclouds: []Provider{
			{Key: "Alibaba Cloud", Weight: 0.15},
			{Key: "Tencent Cloud", Weight: 0.15},
			{Key: "Vast.ai", Weight: 0.15},
			{Key: "Paperspace", Weight: 0.15},
			{Key: "Replicate", Weight: 0.10},
			{Key: "Thunder Compute", Weight: 0.10},
			{Key: "Cerebrium", Weight: 0.10},
			{Key: "NeevCloud", Weight: 0.10},
		},
		DefaultNeocloudWeight: DefaultNeocloudWeight,
	})
	if err != nil {
		panic(err)
	}
	return reg
}

// NewRegistry copies cfg into an immutable registry. Categories are forced
// from the list each provider appears in.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if len(cfg.Hyperscalers) == 0 && len(cfg.Neoclouds) == 0 {
		return nil, ErrEmptyRegistry
	}

	reg := &Registry{
		hyperscalers:          make([]Provider, len(cfg.Hyperscalers)),
		neoclouds:             make([]Provider, len(cfg.Neoclouds)),
		defaultNeocloudWeight: cfg.DefaultNeocloudWeight,
	}
	for i, p := range cfg.Hyperscalers {
		if p.Key == "" {
			return nil, fmt.Errorf("hyperscaler %d: empty key", i)
		}
		p.Category = CategoryHyperscaler
		reg.hyperscalers[i] = p
	}
	for i, p := range cfg.Neoclouds {
		if p.Key == "" {
			return nil, fmt.Errorf("neocloud %d: empty key", i)
		}
		p.Category = CategoryNeocloud
		p.DiscountRate = 0
		reg.neoclouds[i] = p
	}
	if reg.defaultNeocloudWeight <= 0 {
		reg.defaultNeocloudWeight = DefaultNeocloudWeight
	}
	return reg, nil
}

// Hyperscalers returns the hyperscaler entries in declaration order.
func (r *Registry) Hyperscalers() []Provider {
	out := make([]Provider, len(r.hyperscalers))
	copy(out, r.hyperscalers)
	return out
}

// Neoclouds returns the named neocloud entries in declaration order.
func (r *Registry) Neoclouds() []Provider {
	out := make([]Provider, len(r.neoclouds))
	copy(out, r.neoclouds)
	return out
}

// DefaultNeocloudWeight is the raw weight of unregistered neoclouds.
func (r *Registry) DefaultNeocloudWeight() float64 {
	return r.defaultNeocloudWeight
}

// IsHyperscaler reports whether key is exactly a registered hyperscaler key.
func (r *Registry) IsHyperscaler(key string) bool {
	for _, hs := range r.hyperscalers {
		if hs.Key == key {
			return true
		}
	}
	return false
}

// NeocloudWeight resolves the raw weight for an observed provider: the first
// registered neocloud whose key is a case-insensitive substring of name, else
// the default weight. matched is empty when the default applies.
func (r *Registry) NeocloudWeight(name string) (weight float64, matched string) {
	lower := strings.ToLower(name)
	for _, nc := range r.neoclouds {
		if strings.Contains(lower, strings.ToLower(nc.Key)) {
			return nc.Weight, nc.Key
		}
	}
	return r.defaultNeocloudWeight, ""
}

// IsExcluded reports whether name is a derived pseudo-provider.
func IsExcluded(name string) bool {
	for _, marker := range excludedMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

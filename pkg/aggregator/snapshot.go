package aggregator

import "time"

// Contribution is the audit record of one provider's part in the index.
type Contribution struct {
	Provider    string   `json:"provider"`
	Category    Category `json:"category"`
	ObservedKey string   `json:"observed_key"`

	OriginalPrice   float64 `json:"original_price"`
	DiscountRate    float64 `json:"discount_rate"`
	DiscountedPrice float64 `json:"discounted_price"`
	EffectivePrice  float64 `json:"effective_price"`

	// Weight is the registry weight (hyperscaler) or raw weight (neocloud).
	Weight float64 `json:"weight"`
	// NormalizedWeight is Weight rescaled over the providers present.
	NormalizedWeight float64 `json:"normalized_weight"`
	// Contribution is the amount added to the component sum before any
	// hyperscaler renormalization.
	Contribution float64 `json:"contribution"`
}

// AbsoluteWeight is the provider's share of the whole index.
func (c Contribution) AbsoluteWeight() float64 {
	if c.Category == CategoryHyperscaler {
		return c.Weight * HyperscalerShare
	}
	return c.Weight * NeocloudShare
}

// Snapshot is the immutable result of one calculation run.
type Snapshot struct {
	Timestamp            time.Time `json:"timestamp"`
	FinalPrice           float64   `json:"final_index_price"`
	HyperscalerComponent float64   `json:"hyperscaler_component"`
	NeocloudComponent    float64   `json:"neocloud_component"`

	HyperscalerWeightUsed float64 `json:"hyperscaler_weight_used"`
	NeocloudWeightUsed    float64 `json:"neocloud_weight_used"`
	// RenormalizationFactor is 1/HyperscalerWeightUsed when hyperscalers were
	// missing, else 1.
	RenormalizationFactor float64 `json:"renormalization_factor"`

	Hyperscalers []Contribution `json:"hyperscalers"`
	Neoclouds    []Contribution `json:"neoclouds"`
}

// IsZero reports whether no provider contributed.
func (s *Snapshot) IsZero() bool {
	return len(s.Hyperscalers) == 0 && len(s.Neoclouds) == 0
}

// Breakdown returns all contributions, hyperscalers first.
func (s *Snapshot) Breakdown() []Contribution {
	out := make([]Contribution, 0, len(s.Hyperscalers)+len(s.Neoclouds))
	out = append(out, s.Hyperscalers...)
	return append(out, s.Neoclouds...)
}

// ProviderCount is the number of providers that contributed.
func (s *Snapshot) ProviderCount() int {
	return len(s.Hyperscalers) + len(s.Neoclouds)
}

package sources

// SourceType tells where an observation came from.
type SourceType string

const (
	// SourceTypeDirect is a per-provider observation file written by one scraper.
	SourceTypeDirect SourceType = "direct"
	// SourceTypeAggregator is the pre-merged combined observation file.
	SourceTypeAggregator SourceType = "aggregator"
)

// Observation is one hourly rental price for a provider.
type Observation struct {
	Provider string     `json:"provider"`
	RawName  string     `json:"raw_name"`
	Price    float64    `json:"price"`
	Source   SourceType `json:"source"`
	File     string     `json:"file,omitempty"`
}

// Observations is a provider -> observation set that keeps first-insertion
// order. Setting an existing provider replaces its value in place.
type Observations struct {
	order []string
	byKey map[string]Observation
}

// NewObservations creates an empty set.
func NewObservations() *Observations {
	return &Observations{byKey: make(map[string]Observation)}
}

// Set stores obs under its provider key. Non-positive prices are ignored and
// reported as not stored.
func (o *Observations) Set(obs Observation) bool {
	if obs.Price <= 0 {
		return false
	}
	if _, exists := o.byKey[obs.Provider]; !exists {
		o.order = append(o.order, obs.Provider)
	}
	o.byKey[obs.Provider] = obs
	return true
}

// Get returns the observation for provider.
func (o *Observations) Get(provider string) (Observation, bool) {
	obs, ok := o.byKey[provider]
	return obs, ok
}

// Price returns the observed price for provider.
func (o *Observations) Price(provider string) (float64, bool) {
	obs, ok := o.byKey[provider]
	return obs.Price, ok
}

// Keys returns provider keys in insertion order.
func (o *Observations) Keys() []string {
	keys := make([]string, len(o.order))
	copy(keys, o.order)
	return keys
}

// All returns observations in insertion order.
func (o *Observations) All() []Observation {
	out := make([]Observation, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, o.byKey[k])
	}
	return out
}

// Len returns the number of providers.
func (o *Observations) Len() int {
	return len(o.order)
}

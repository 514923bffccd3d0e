package aggregator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

// ReportTimeLayout is the timestamp format used in reports and history rows.
const ReportTimeLayout = "2006-01-02 15:04:05"

// Report is the JSON document written after every calculation.
type Report struct {
	Timestamp       string
	FinalIndexPrice float64
	Hyperscaler     float64
	Neocloud        float64
	Hyperscalers    []HyperscalerDetail
	Neoclouds       []NeocloudDetail
	Meta            ReportMeta
}

// HyperscalerDetail is one entry of details.hyperscalers.
type HyperscalerDetail struct {
	Name         string  `json:"-"`
	Original     float64 `json:"original"`
	Discounted   float64 `json:"discounted"`
	Effective    float64 `json:"effective"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// NeocloudDetail is one entry of details.neoclouds.
type NeocloudDetail struct {
	Name             string  `json:"-"`
	Price            float64 `json:"price"`
	RawWeight        float64 `json:"raw_weight"`
	NormalizedWeight float64 `json:"normalized_weight"`
	Contribution     float64 `json:"contribution"`
}

// ReportMeta carries run context that is not part of the index itself.
type ReportMeta struct {
	RunID                 string  `json:"run_id,omitempty"`
	HyperscalerWeightUsed float64 `json:"hyperscaler_weight_used"`
	NeocloudWeightUsed    float64 `json:"neocloud_weight_used"`
	RenormalizationFactor float64 `json:"renormalization_factor"`
}

// Round rounds v to places decimal digits.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// NewReport renders a snapshot. The headline price is rounded to cents and
// the components to four places; details keep full precision.
func NewReport(snap *Snapshot, runID string) *Report {
	r := &Report{
		Timestamp:       snap.Timestamp.Format(ReportTimeLayout),
		FinalIndexPrice: Round(snap.FinalPrice, 2),
		Hyperscaler:     Round(snap.HyperscalerComponent, 4),
		Neocloud:        Round(snap.NeocloudComponent, 4),
		Meta: ReportMeta{
			RunID:                 runID,
			HyperscalerWeightUsed: snap.HyperscalerWeightUsed,
			NeocloudWeightUsed:    snap.NeocloudWeightUsed,
			RenormalizationFactor: snap.RenormalizationFactor,
		},
	}
	for _, c := range snap.Hyperscalers {
		r.Hyperscalers = append(r.Hyperscalers, HyperscalerDetail{
			Name:         c.Provider,
			Original:     c.OriginalPrice,
			Discounted:   c.DiscountedPrice,
			Effective:    c.EffectivePrice,
			Weight:       c.Weight,
			Contribution: c.Contribution,
		})
	}
	for _, c := range snap.Neoclouds {
		r.Neoclouds = append(r.Neoclouds, NeocloudDetail{
			Name:             c.Provider,
			Price:            c.OriginalPrice,
			RawWeight:        c.Weight,
			NormalizedWeight: c.NormalizedWeight,
			Contribution:     c.Contribution,
		})
	}
	return r
}

// Details renders the details object on its own, as stored in index metadata.
func (r *Report) Details() (json.RawMessage, error) {
	hs := newObject()
	for _, d := range r.Hyperscalers {
		if err := hs.set(d.Name, d); err != nil {
			return nil, err
		}
	}
	nc := newObject()
	for _, d := range r.Neoclouds {
		if err := nc.set(d.Name, d); err != nil {
			return nil, err
		}
	}

	details := newObject()
	if err := details.setRaw("hyperscalers", hs.bytes()); err != nil {
		return nil, err
	}
	if err := details.setRaw("neoclouds", nc.bytes()); err != nil {
		return nil, err
	}
	return details.bytes(), nil
}

// MarshalJSON keeps provider order in the details maps.
func (r *Report) MarshalJSON() ([]byte, error) {
	details, err := r.Details()
	if err != nil {
		return nil, err
	}

	components := newObject()
	if err := components.set("hyperscaler", r.Hyperscaler); err != nil {
		return nil, err
	}
	if err := components.set("neocloud", r.Neocloud); err != nil {
		return nil, err
	}

	doc := newObject()
	for _, kv := range []struct {
		key   string
		value interface{}
	}{
		{"timestamp", r.Timestamp},
		{"final_index_price", r.FinalIndexPrice},
		{"components", json.RawMessage(components.bytes())},
		{"details", details},
		{"meta", r.Meta},
	} {
		if err := doc.set(kv.key, kv.value); err != nil {
			return nil, err
		}
	}
	return doc.bytes(), nil
}

// WriteReport writes the report as indented JSON via a temp file rename.
func WriteReport(path string, r *Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("failed to indent report: %w", err)
	}
	out.WriteByte('\n')
	return writeFileAtomic(path, out.Bytes())
}

// ReadReport loads a report and rebuilds the snapshot it was rendered from.
// Prices come back at report precision.
func ReadReport(path string) (*Snapshot, *Report, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied report path
	if err != nil {
		return nil, nil, err
	}

	var doc struct {
		Timestamp       string  `json:"timestamp"`
		FinalIndexPrice float64 `json:"final_index_price"`
		Components      struct {
			Hyperscaler float64 `json:"hyperscaler"`
			Neocloud    float64 `json:"neocloud"`
		} `json:"components"`
		Details struct {
			Hyperscalers json.RawMessage `json:"hyperscalers"`
			Neoclouds    json.RawMessage `json:"neoclouds"`
		} `json:"details"`
		Meta ReportMeta `json:"meta"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	ts, err := time.ParseInLocation(ReportTimeLayout, doc.Timestamp, time.Local)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidReport, doc.Timestamp, err)
	}

	r := &Report{
		Timestamp:       doc.Timestamp,
		FinalIndexPrice: doc.FinalIndexPrice,
		Hyperscaler:     doc.Components.Hyperscaler,
		Neocloud:        doc.Components.Neocloud,
		Meta:            doc.Meta,
	}

	if err := eachOrdered(doc.Details.Hyperscalers, func(name string, raw json.RawMessage) error {
		var d HyperscalerDetail
		if err := json.Unmarshal(raw, &d); err != nil {
			return err
		}
		d.Name = name
		r.Hyperscalers = append(r.Hyperscalers, d)
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("%w: details.hyperscalers: %v", ErrInvalidReport, err)
	}

	if err := eachOrdered(doc.Details.Neoclouds, func(name string, raw json.RawMessage) error {
		var d NeocloudDetail
		if err := json.Unmarshal(raw, &d); err != nil {
			return err
		}
		d.Name = name
		r.Neoclouds = append(r.Neoclouds, d)
		return nil
	}); err != nil {
		return nil, nil, fmt.Errorf("%w: details.neoclouds: %v", ErrInvalidReport, err)
	}

	return r.Snapshot(ts), r, nil
}

// Snapshot converts the report back into a snapshot stamped ts.
func (r *Report) Snapshot(ts time.Time) *Snapshot {
	snap := &Snapshot{
		Timestamp:             ts,
		FinalPrice:            r.FinalIndexPrice,
		HyperscalerComponent:  r.Hyperscaler,
		NeocloudComponent:     r.Neocloud,
		HyperscalerWeightUsed: r.Meta.HyperscalerWeightUsed,
		NeocloudWeightUsed:    r.Meta.NeocloudWeightUsed,
		RenormalizationFactor: r.Meta.RenormalizationFactor,
	}
	if snap.RenormalizationFactor == 0 {
		snap.RenormalizationFactor = 1
	}
	for _, d := range r.Hyperscalers {
		var rate float64
		if d.Original != 0 {
			rate = (d.Original - d.Discounted) / d.Original
		}
		snap.Hyperscalers = append(snap.Hyperscalers, Contribution{
			Provider:        d.Name,
			Category:        CategoryHyperscaler,
			ObservedKey:     d.Name,
			OriginalPrice:   d.Original,
			DiscountRate:    rate,
			DiscountedPrice: d.Discounted,
			EffectivePrice:  d.Effective,
			Weight:          d.Weight,
			Contribution:    d.Contribution,
		})
	}
	for _, d := range r.Neoclouds {
		snap.Neoclouds = append(snap.Neoclouds, Contribution{
			Provider:         d.Name,
			Category:         CategoryNeocloud,
			ObservedKey:      d.Name,
			OriginalPrice:    d.Price,
			DiscountedPrice:  d.Price,
			EffectivePrice:   d.Price,
			Weight:           d.RawWeight,
			NormalizedWeight: d.NormalizedWeight,
			Contribution:     d.Contribution,
		})
	}
	return snap
}

// object builds a JSON object with keys in insertion order.
type object struct {
	buf   bytes.Buffer
	count int
}

func newObject() *object {
	o := &object{}
	o.buf.WriteByte('{')
	return o
}

func (o *object) set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return o.setRaw(key, raw)
}

func (o *object) setRaw(key string, raw []byte) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	if o.count > 0 {
		o.buf.WriteByte(',')
	}
	o.buf.Write(k)
	o.buf.WriteByte(':')
	o.buf.Write(raw)
	o.count++
	return nil
}

func (o *object) bytes() []byte {
	out := make([]byte, 0, o.buf.Len()+1)
	out = append(out, o.buf.Bytes()...)
	return append(out, '}')
}

// eachOrdered calls fn for every member of a JSON object in document order.
// null or missing input is treated as an empty object.
func eachOrdered(raw json.RawMessage, fn func(string, json.RawMessage) error) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected key, got %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

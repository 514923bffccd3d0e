package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/StrathCole/gpu-index/pkg/metrics"
)

// LoaderConfig locates observation files.
type LoaderConfig struct {
	Dir          string
	CombinedFile string
	FilePattern  string
}

// Loader reads observation files written by the scrapers.
type Loader struct {
	cfg        LoaderConfig
	normalizer *Normalizer
	logger     zerolog.Logger
}

// metaFileMarkers mark aggregator or merged files that must not be read as
// individual providers.
var metaFileMarkers = []string{"combined", "getdeploying"}

// NewLoader creates a loader.
func NewLoader(cfg LoaderConfig, normalizer *Normalizer, logger zerolog.Logger) *Loader {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.CombinedFile == "" {
		cfg.CombinedFile = "t4_combined_prices.json"
	}
	if cfg.FilePattern == "" {
		cfg.FilePattern = "*_t4_prices.json"
	}
	return &Loader{
		cfg:        cfg,
		normalizer: normalizer,
		logger:     logger.With().Str("component", "loader").Logger(),
	}
}

// Load returns one price per canonical provider. The combined file is used
// when it yields at least one observation; otherwise individual files are
// scanned and the last file loaded wins for a repeated provider. An empty
// result is returned together with ErrNoData.
func (l *Loader) Load(ctx context.Context) (*Observations, error) {
	combined := filepath.Join(l.cfg.Dir, l.cfg.CombinedFile)

	obs, err := l.loadCombined(combined)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.logger.Debug().Str("file", combined).Msg("Combined file not present")
	case err != nil:
		l.logger.Warn().Err(err).Str("file", combined).Msg("Failed to load combined file")
	case obs.Len() > 0:
		l.logger.Info().Str("file", combined).Int("providers", obs.Len()).Msg("Loaded combined prices")
		return obs, nil
	default:
		l.logger.Warn().Str("file", combined).Msg("Combined file has no usable prices")
	}

	obs, err = l.loadIndividual(ctx)
	if err != nil {
		return NewObservations(), err
	}
	if obs.Len() == 0 {
		return obs, fmt.Errorf("%w in %s", ErrNoData, l.cfg.Dir)
	}

	l.logger.Info().Int("providers", obs.Len()).Msg("Loaded individual provider prices")
	return obs, nil
}

func (l *Loader) loadCombined(path string) (*Observations, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path built from configured data dir
	if err != nil {
		return nil, err
	}

	doc, err := decodeObservationFile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	obs := NewObservations()
	for _, entry := range doc.prices {
		price, ok := l.parse(entry.value, entry.key)
		if !ok {
			continue
		}
		canonical := l.normalizer.Normalize(entry.key)
		obs.Set(Observation{
			Provider: canonical,
			RawName:  entry.key,
			Price:    price,
			Source:   SourceTypeAggregator,
			File:     filepath.Base(path),
		})
		metrics.RecordObservation(string(SourceTypeAggregator))
	}
	return obs, nil
}

func (l *Loader) loadIndividual(ctx context.Context) (*Observations, error) {
	files, err := filepath.Glob(filepath.Join(l.cfg.Dir, l.cfg.FilePattern))
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", l.cfg.FilePattern, err)
	}

	l.logger.Info().Int("files", len(files)).Msg("Scanning individual price files")

	obs := NewObservations()
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := filepath.Base(path)
		if isMetaFile(name) {
			l.logger.Debug().Str("file", name).Msg("Skipping aggregator file")
			continue
		}

		o, ok := l.loadProviderFile(path)
		if !ok {
			continue
		}
		if prev, exists := obs.Get(o.Provider); exists {
			l.logger.Debug().
				Str("provider", o.Provider).
				Str("previous_file", prev.File).
				Str("file", o.File).
				Msg("Provider seen in several files, keeping last")
		}
		obs.Set(o)
		metrics.RecordObservation(string(SourceTypeDirect))
	}
	return obs, nil
}

// loadProviderFile returns the first positive price listed in one scraper file.
func (l *Loader) loadProviderFile(path string) (Observation, bool) {
	name := filepath.Base(path)

	data, err := os.ReadFile(path) // #nosec G304 -- path comes from a glob over the data dir
	if err != nil {
		l.logger.Warn().Err(err).Str("file", name).Msg("Failed to read price file")
		return Observation{}, false
	}

	doc, err := decodeObservationFile(data)
	if err != nil {
		l.logger.Warn().Err(err).Str("file", name).Msg("Skipping malformed price file")
		metrics.RecordDroppedObservation("malformed_file")
		return Observation{}, false
	}

	raw := doc.provider
	if raw == "" {
		raw = providerFromFilename(name, l.cfg.FilePattern)
	}

	for _, entry := range doc.prices {
		price, ok := l.parse(entry.value, raw)
		if !ok {
			continue
		}
		return Observation{
			Provider: l.normalizer.Normalize(raw),
			RawName:  raw,
			Price:    price,
			Source:   SourceTypeDirect,
			File:     name,
		}, true
	}

	l.logger.Debug().Str("file", name).Msg("No positive price in file")
	return Observation{}, false
}

// parse converts one price string, logging and counting anything dropped.
func (l *Loader) parse(value, provider string) (float64, bool) {
	price, err := ParsePrice(value)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			l.logger.Debug().Str("provider", provider).Str("value", value).Msg("Dropping unparseable price")
			metrics.RecordDroppedObservation("unparseable")
		}
		return 0, false
	}
	if price <= 0 {
		metrics.RecordDroppedObservation("non_positive")
		return 0, false
	}
	return price, true
}

func isMetaFile(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range metaFileMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// providerFromFilename turns "thunder_compute_t4_prices.json" into
// "Thunder Compute".
func providerFromFilename(name, pattern string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	suffix := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), filepath.Ext(pattern))
	stem = strings.TrimSuffix(stem, suffix)
	stem = strings.ReplaceAll(stem, "_", " ")
	return titleCase(stem)
}

// titleCase upper-cases every letter that follows a non-letter and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		isLetter := unicode.IsLetter(r)
		switch {
		case isLetter && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case isLetter:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = isLetter
	}
	return b.String()
}

type priceEntry struct {
	key   string
	value string
}

type observationFile struct {
	provider string
	prices   []priceEntry
}

// decodeObservationFile reads {"provider": ..., "prices": {...}} keeping the
// order of the prices object. Unknown keys are ignored.
func decodeObservationFile(data []byte) (*observationFile, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	doc := &observationFile{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		switch key {
		case "provider":
			var v interface{}
			if err := dec.Decode(&v); err != nil {
				return nil, fmt.Errorf("%w: provider: %v", ErrMalformedFile, err)
			}
			if s, ok := v.(string); ok {
				doc.provider = s
			}
		case "prices":
			prices, err := decodePrices(dec)
			if err != nil {
				return nil, err
			}
			doc.prices = prices
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
			}
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return doc, nil
}

// decodePrices reads the prices value. Anything other than an object is
// treated as empty.
func decodePrices(dec *json.Decoder) ([]priceEntry, error) {
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: prices: %v", ErrMalformedFile, err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, nil
	}

	inner := json.NewDecoder(bytes.NewReader(trimmed))
	inner.UseNumber()
	if err := expectDelim(inner, '{'); err != nil {
		return nil, err
	}

	var entries []priceEntry
	for inner.More() {
		key, err := readKey(inner)
		if err != nil {
			return nil, err
		}
		var v interface{}
		if err := inner.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: prices.%s: %v", ErrMalformedFile, key, err)
		}
		entries = append(entries, priceEntry{key: key, value: stringify(v)})
	}
	return entries, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected object key, got %v", ErrMalformedFile, tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: unexpected end of input", ErrMalformedFile)
		}
		return fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedFile, want, tok)
	}
	return nil
}

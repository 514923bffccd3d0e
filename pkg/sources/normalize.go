package sources

import (
	"strings"

	"github.com/rs/zerolog"
)

// Alias maps a loosely written provider name onto its canonical key.
type Alias struct {
	Alias     string
	Canonical string
}

// DefaultAliases is the built-in alias table. Order matters: the first
// matching entry wins.
var DefaultAliases = []Alias{
	{Alias: "Google Cloud", Canonical: "GCP"},
	{Alias: "Google", Canonical: "GCP"},
	{Alias: "Amazon Web Services", Canonical: "AWS"},
	{Alias: "Alibaba", Canonical: "Alibaba Cloud"},
	{Alias: "Tencent", Canonical: "Tencent Cloud"},
	{Alias: "Thunder", Canonical: "Thunder Compute"},
}

// Normalizer maps raw provider names to canonical keys.
type Normalizer struct {
	aliases []Alias
	lower   []string
	logger  zerolog.Logger
}

// NewNormalizer creates a normalizer over an ordered alias table. A nil
// table selects DefaultAliases.
func NewNormalizer(aliases []Alias, logger zerolog.Logger) *Normalizer {
	if aliases == nil {
		aliases = DefaultAliases
	}
	n := &Normalizer{
		aliases: make([]Alias, len(aliases)),
		lower:   make([]string, len(aliases)),
		logger:  logger.With().Str("component", "normalizer").Logger(),
	}
	copy(n.aliases, aliases)
	for i, a := range aliases {
		n.lower[i] = strings.ToLower(a.Alias)
	}
	return n
}

// Normalize returns the canonical key for raw. Each alias is tried in order,
// first as a case-insensitive equality and then as a case-insensitive
// substring of raw. Unknown names are returned unchanged.
func (n *Normalizer) Normalize(raw string) string {
	name := strings.ToLower(raw)
	for i, a := range n.aliases {
		if name == n.lower[i] {
			return a.Canonical
		}
		if strings.Contains(name, n.lower[i]) {
			n.logger.Debug().
				Str("raw", raw).
				Str("alias", a.Alias).
				Str("canonical", a.Canonical).
				Msg("Provider matched by substring alias")
			return a.Canonical
		}
	}
	return raw
}

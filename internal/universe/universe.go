// Package universe maps security names to exchange codes and aggregates
// pick frequency across quarters.
package universe

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/quantfan/asharescan/internal/domain"
)

// Resolver looks up ts_codes by the Chinese security name.
type Resolver struct {
	byName map[string]string
}

// NewResolver builds a resolver from the listed universe.
func NewResolver(securities []domain.Security) *Resolver {
	m := make(map[string]string, len(securities))
	for _, s := range securities {
		m[s.Name] = s.Code
	}
	return &Resolver{byName: m}
}

// Resolve returns the code for a name.
func (r *Resolver) Resolve(name string) (string, bool) {
	code, ok := r.byName[name]
	return code, ok
}

// ResolveAll maps names to securities, logging and collecting misses.
func (r *Resolver) ResolveAll(names []string) (resolved []domain.Security, missing []string) {
	for _, name := range names {
		code, ok := r.byName[name]
		if !ok {
			log.Warn().Str("name", name).Msg("no listed code for security name")
			missing = append(missing, name)
			continue
		}
		resolved = append(resolved, domain.Security{Code: code, Name: name})
	}
	return resolved, missing
}

// Frequency is one security's appearance count across quarterly picks.
type Frequency struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// CountFrequencies tallies how often each security appears in a pick
// history, sorted by count descending then name ascending for stable
// output.
func CountFrequencies(picks []domain.Ranking) []Frequency {
	counts := map[string]int{}
	for _, p := range picks {
		counts[p.Security.Name]++
	}
	out := make([]Frequency, 0, len(counts))
	for name, n := range counts {
		out = append(out, Frequency{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

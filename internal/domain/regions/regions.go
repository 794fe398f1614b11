// Package regions maps edge-provided country codes and free-form
// location names onto the canonical location values stored on profiles.
package regions

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// Edge headers carrying the visitor's country.
const (
	HeaderVercelCountry     = "X-Vercel-IP-Country"
	HeaderCloudflareCountry = "CF-IPCountry"
)

// maxDistance is the edit distance tolerated when matching a typed location.
const maxDistance = 2

var countries = map[string]string{
	"PE": "Peru",
	"MX": "Mexico",
	"BR": "Brazil",
	"CL": "Chile",
	"CO": "Colombia",
	"BO": "Bolivia",
	"EC": "Ecuador",
	"PY": "Paraguay",
}

// Resolver normalises locations against a known set.
type Resolver struct {
	known map[string]string // folded -> canonical
}

// New creates a Resolver knowing the built-in countries plus extra
// canonical locations, typically the distinct locations in the store.
func New(extra ...string) *Resolver {
	r := &Resolver{known: make(map[string]string)}
	for _, name := range countries {
		r.known[r.key(name)] = name
	}
	for _, name := range extra {
		if name = strings.TrimSpace(name); name != "" && !strings.EqualFold(name, model.LocationRandom) {
			r.known[r.key(name)] = name
		}
	}
	return r
}

// CountryRegion maps a two-letter country code to a location. ok is false
// for countries without a region.
func CountryRegion(code string) (string, bool) {
	name, ok := countries[strings.ToUpper(strings.TrimSpace(code))]
	return name, ok
}

// Key folds case and strips diacritics, so "PERÚ" and "peru" compare equal.
func Key(s string) string {
	return New().key(s)
}

func (r *Resolver) key(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = strings.TrimSpace(s)
	}
	// Casers are stateful and not safe to share across goroutines.
	return cases.Fold().String(out)
}

// Normalize resolves a requested location to its canonical spelling.
// Empty and "random" resolve to random; unknown names within a small
// edit distance of a known one snap to it; anything else is returned
// trimmed so an exact store match can still succeed.
func (r *Resolver) Normalize(loc string) string {
	loc = strings.TrimSpace(loc)
	if loc == "" || strings.EqualFold(loc, model.LocationRandom) {
		return model.LocationRandom
	}
	k := r.key(loc)
	if canon, ok := r.known[k]; ok {
		return canon
	}
	best, bestDist := "", maxDistance+1
	for key, canon := range r.known {
		if d := levenshtein.ComputeDistance(k, key); d < bestDist || (d == bestDist && canon < best) {
			best, bestDist = canon, d
		}
	}
	if best != "" && bestDist <= maxDistance {
		return best
	}
	return loc
}

// Infer picks the location for a request: an explicit non-random location
// wins, then the visitor's country, then random.
func (r *Resolver) Infer(requested, country string) string {
	if loc := r.Normalize(requested); loc != model.LocationRandom {
		return loc
	}
	if name, ok := CountryRegion(country); ok {
		return name
	}
	return model.LocationRandom
}

// Filter keeps the profiles in loc. Random keeps everyone.
func (r *Resolver) Filter(population []model.Profile, loc string) []model.Profile {
	if loc == "" || loc == model.LocationRandom {
		return population
	}
	want := r.key(loc)
	var out []model.Profile
	for _, p := range population {
		if r.key(p.Location) == want {
			out = append(out, p)
		}
	}
	return out
}

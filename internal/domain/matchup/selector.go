// Package matchup draws batches of paired profiles from a population.
//
// Each role group is sorted by success ratio and cut into five bands; a
// batch takes one executive and one technical profile from every band so
// the two sides of a pair have a similar track record.
package matchup

import (
	"sort"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// Bands is the number of similarity bands per role group.
const Bands = 5

// DefaultEasterProbability is the chance of swapping in an alternate image.
const DefaultEasterProbability = 1.0 / 3.0

// Mode describes how a batch was drawn.
type Mode string

const (
	ModeBanded   Mode = "banded"
	ModeShuffled Mode = "shuffled"
)

// Selector draws batches. It is safe for concurrent use when its Rand is.
type Selector struct {
	rng               Rand
	easterProbability float64
}

// New creates a Selector.
func New(opts ...Option) *Selector {
	s := &Selector{
		rng:               DefaultRand(),
		easterProbability: DefaultEasterProbability,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BandRange returns the inclusive index range of band k (0 is the top
// fifth) in a group of n profiles sorted by descending ratio. Bands that
// would be empty in small groups collapse onto their first index.
func BandRange(k, n int) (lo, hi int) {
	return bandRange(k, n, Bands)
}

func bandRange(k, n, bands int) (lo, hi int) {
	if n <= 0 || bands <= 0 {
		return 0, -1
	}
	lo = k * n / bands
	hi = (k+1)*n/bands - 1
	lo = clamp(lo, 0, n-1)
	hi = clamp(hi, 0, n-1)
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SelectBatch draws up to ten distinct profiles as adjacent pairs. When
// both role groups are present it returns min(5, executives, technical)
// pairs. The input is never modified; returned profiles have zeroed
// session deltas.
func (s *Selector) SelectBatch(population []model.Profile) []model.Profile {
	batch, _ := s.SelectBatchMode(population)
	return batch
}

// SelectBatchMode is SelectBatch that also reports how the batch was drawn.
func (s *Selector) SelectBatchMode(population []model.Profile) ([]model.Profile, Mode) {
	execs, techs := Partition(population)
	if len(execs) == 0 || len(techs) == 0 {
		return s.shuffled(population), ModeShuffled
	}

	sortByRatio(execs)
	sortByRatio(techs)

	// A group smaller than five is cut into as many bands as it has
	// profiles, so no profile appears twice in a batch.
	bands := min(Bands, len(execs), len(techs))
	out := make([]model.Profile, 0, 2*bands)
	for k := 0; k < bands; k++ {
		out = append(out, s.prepare(s.pickInBand(execs, k, bands)), s.prepare(s.pickInBand(techs, k, bands)))
	}
	return out, ModeBanded
}

// Partition splits a population by role group. Profiles with an unknown
// group are dropped.
func Partition(population []model.Profile) (execs, techs []model.Profile) {
	for _, p := range population {
		switch p.RoleGroup {
		case model.RoleExecutive:
			execs = append(execs, p)
		case model.RoleTechnical:
			techs = append(techs, p)
		}
	}
	return execs, techs
}

// sortByRatio orders a group by descending ratio; ties keep input order.
func sortByRatio(group []model.Profile) {
	sort.SliceStable(group, func(i, j int) bool {
		return group[i].SuccessRatio() > group[j].SuccessRatio()
	})
}

func (s *Selector) pickInBand(group []model.Profile, k, bands int) model.Profile {
	lo, hi := bandRange(k, len(group), bands)
	return group[lo+s.rng.IntN(hi-lo+1)]
}

// shuffled handles populations where role pairing is impossible.
func (s *Selector) shuffled(population []model.Profile) []model.Profile {
	pool := append([]model.Profile(nil), population...)
	for i := len(pool) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	n := min(model.BatchSize, len(pool))
	out := make([]model.Profile, n)
	for i := 0; i < n; i++ {
		out[i] = s.prepare(pool[i])
	}
	return out
}

// prepare makes a profile ready for display.
func (s *Selector) prepare(p model.Profile) model.Profile {
	p = p.ResetSession()
	if p.AlternateImageURL != "" && s.rng.Float64() < s.easterProbability {
		p.ImageURL = p.AlternateImageURL
	}
	return p
}

// Orient randomises left/right order inside every pair of batch, in place.
func (s *Selector) Orient(batch []model.Profile) []model.Profile {
	for i := 0; i+1 < len(batch); i += model.PairSize {
		if s.rng.IntN(2) == 1 {
			batch[i], batch[i+1] = batch[i+1], batch[i]
		}
	}
	return batch
}

// PrioritizeSponsored makes sure a randomly chosen sponsored profile
// appears in the first pair. Without sponsored profiles the batch is
// returned unchanged.
func (s *Selector) PrioritizeSponsored(batch, population []model.Profile) []model.Profile {
	var sponsored []model.Profile
	for _, p := range population {
		if p.Sponsored {
			sponsored = append(sponsored, p)
		}
	}
	if len(sponsored) == 0 || len(batch) == 0 {
		return batch
	}
	pick := sponsored[s.rng.IntN(len(sponsored))]

	out := append([]model.Profile(nil), batch...)
	for i := range out {
		if out[i].ID != pick.ID {
			continue
		}
		pair := i / model.PairSize
		if pair > 0 {
			a, b := pair*model.PairSize, pair*model.PairSize+1
			out[0], out[a] = out[a], out[0]
			if b < len(out) && len(out) > 1 {
				out[1], out[b] = out[b], out[1]
			}
		}
		return out
	}

	slot := 0
	for i := 0; i < min(model.PairSize, len(out)); i++ {
		if out[i].RoleGroup == pick.RoleGroup {
			slot = i
			break
		}
	}
	out[slot] = s.prepare(pick)
	return out
}

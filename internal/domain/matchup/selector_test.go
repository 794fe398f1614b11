package matchup

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// population builds execs and techs with strictly decreasing ratios so
// that index i in each group is also its rank.
func population(execs, techs int) []model.Profile {
	var out []model.Profile
	add := func(prefix string, group model.RoleGroup, n int) {
		for i := 0; i < n; i++ {
			out = append(out, model.Profile{
				ID:           fmt.Sprintf("%s%02d", prefix, i),
				RoleGroup:    group,
				SuccessCount: 1000 - i,
				TotalCount:   1000,
				ImageURL:     "img/" + prefix,
			})
		}
	}
	add("e", model.RoleExecutive, execs)
	add("t", model.RoleTechnical, techs)
	return out
}

func rankOf(id string) int {
	var r int
	_, _ = fmt.Sscanf(id[1:], "%d", &r)
	return r
}

func TestBandRange(t *testing.T) {
	for k := 0; k < Bands; k++ {
		lo, hi := BandRange(k, 20)
		assert.Equal(t, 4*k, lo, "band %d lo", k)
		assert.Equal(t, 4*k+3, hi, "band %d hi", k)
	}

	for _, n := range []int{1, 2, 3, 4, 7} {
		for k := 0; k < Bands; k++ {
			lo, hi := BandRange(k, n)
			assert.GreaterOrEqual(t, lo, 0)
			assert.LessOrEqual(t, lo, hi)
			assert.Less(t, hi, n, "n=%d k=%d", n, k)
		}
	}

	lo, hi := BandRange(0, 0)
	assert.Greater(t, lo, hi)
}

func TestSelectBatch_Pairing(t *testing.T) {
	pop := population(12, 9)
	ids := map[string]bool{}
	for _, p := range pop {
		ids[p.ID] = true
	}
	s := New(WithRand(NewSeededRand(7)))

	for round := 0; round < 200; round++ {
		batch, mode := s.SelectBatchMode(pop)
		require.Equal(t, ModeBanded, mode)
		require.Len(t, batch, model.BatchSize)

		for i := 0; i < len(batch); i += 2 {
			assert.True(t, ids[batch[i].ID], "unknown profile %s", batch[i].ID)
			assert.True(t, ids[batch[i+1].ID], "unknown profile %s", batch[i+1].ID)
			assert.NotEqual(t, batch[i].RoleGroup, batch[i+1].RoleGroup, "pair %d must mix roles", i/2)
		}
	}
}

func TestSelectBatch_BandMonotonicity(t *testing.T) {
	pop := population(20, 20)
	s := New(WithRand(NewSeededRand(42)))

	for round := 0; round < 500; round++ {
		batch := s.SelectBatch(pop)
		for k := 0; k < Bands; k++ {
			exec, tech := batch[2*k], batch[2*k+1]
			require.Equal(t, model.RoleExecutive, exec.RoleGroup)
			require.Equal(t, model.RoleTechnical, tech.RoleGroup)
			assert.GreaterOrEqual(t, rankOf(exec.ID), 4*k)
			assert.LessOrEqual(t, rankOf(exec.ID), 4*k+3)
			assert.GreaterOrEqual(t, rankOf(tech.ID), 4*k)
			assert.LessOrEqual(t, rankOf(tech.ID), 4*k+3)
		}
	}
}

func TestSelectBatch_BandsCoverWholeQuintile(t *testing.T) {
	pop := population(20, 20)
	s := New(WithRand(NewSeededRand(3)))
	seen := map[string]bool{}
	for round := 0; round < 2000; round++ {
		for _, p := range s.SelectBatch(pop) {
			seen[p.ID] = true
		}
	}
	assert.Len(t, seen, 40, "every profile is reachable from its band")
}

func TestSelectBatch_Degenerate(t *testing.T) {
	s := New(WithRand(NewSeededRand(1)))

	for _, n := range []int{0, 1, 2, 15} {
		pop := population(n, 0)
		var batch []model.Profile
		var mode Mode
		require.NotPanics(t, func() { batch, mode = s.SelectBatchMode(pop) }, "n=%d", n)
		assert.Equal(t, ModeShuffled, mode)
		assert.Len(t, batch, min(model.BatchSize, n))

		unique := map[string]bool{}
		for _, p := range batch {
			unique[p.ID] = true
		}
		assert.Len(t, unique, len(batch), "no profile is drawn twice")
	}

	batch := s.SelectBatch(population(0, 3))
	assert.Len(t, batch, 3)
	assert.Empty(t, s.SelectBatch(nil))
}

func TestSelectBatch_SmallGroups(t *testing.T) {
	s := New(WithRand(NewSeededRand(9)))

	cases := []struct {
		execs, techs, pairs int
	}{
		{1, 1, 1},
		{1, 2, 1},
		{3, 7, 3},
		{4, 4, 4},
		{2, 9, 2},
	}
	for _, tc := range cases {
		pop := population(tc.execs, tc.techs)
		var batch []model.Profile
		require.NotPanics(t, func() { batch = s.SelectBatch(pop) }, "%d+%d", tc.execs, tc.techs)
		require.Len(t, batch, 2*tc.pairs, "%d+%d", tc.execs, tc.techs)

		seen := map[string]bool{}
		for i, p := range batch {
			assert.False(t, seen[p.ID], "%s repeated in %d+%d", p.ID, tc.execs, tc.techs)
			seen[p.ID] = true
			if i%2 == 0 {
				assert.Equal(t, model.RoleExecutive, p.RoleGroup, "%d+%d slot %d", tc.execs, tc.techs, i)
			} else {
				assert.Equal(t, model.RoleTechnical, p.RoleGroup, "%d+%d slot %d", tc.execs, tc.techs, i)
			}
		}
	}

	// Four per group gives four one-profile bands, so everyone is drawn in rank order.
	batch := s.SelectBatch(population(4, 4))
	for k := 0; k < 4; k++ {
		assert.Equal(t, fmt.Sprintf("e%02d", k), batch[2*k].ID)
		assert.Equal(t, fmt.Sprintf("t%02d", k), batch[2*k+1].ID)
	}
}

func TestSelectBatch_DoesNotMutateInput(t *testing.T) {
	pop := population(6, 6)
	pop[0].SessionTotalDelta = 3
	pop[0].AlternateImageURL = "alt"
	before := append([]model.Profile(nil), pop...)

	s := New(WithRand(NewSeededRand(5)), WithEasterProbability(1))
	batch := s.SelectBatch(pop)

	assert.Equal(t, before, pop)
	for _, p := range batch {
		assert.Zero(t, p.SessionSuccessDelta)
		assert.Zero(t, p.SessionTotalDelta)
	}
}

func TestSelectBatch_EasterImage(t *testing.T) {
	pop := population(5, 5)
	for i := range pop {
		pop[i].AlternateImageURL = "alt/" + pop[i].ID
	}

	always := New(WithRand(NewSeededRand(1)), WithEasterProbability(1)).SelectBatch(pop)
	for _, p := range always {
		assert.Equal(t, "alt/"+p.ID, p.ImageURL)
	}

	never := New(WithRand(NewSeededRand(1)), WithEasterProbability(0)).SelectBatch(pop)
	for _, p := range never {
		assert.NotEqual(t, "alt/"+p.ID, p.ImageURL)
	}

	plain := population(5, 5)
	for _, p := range New(WithEasterProbability(1)).SelectBatch(plain) {
		assert.NotEmpty(t, p.ImageURL, "profiles without an alternate keep their image")
	}
}

func TestOrient(t *testing.T) {
	s := New(WithRand(NewSeededRand(11)))
	swapped := 0
	const rounds = 2000
	for i := 0; i < rounds; i++ {
		pair := s.Orient([]model.Profile{{ID: "a"}, {ID: "b"}})
		if pair[0].ID == "b" {
			swapped++
		}
	}
	assert.InDelta(t, 0.5, float64(swapped)/rounds, 0.05)

	odd := s.Orient([]model.Profile{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	assert.Equal(t, "c", odd[2].ID)
}

func TestPrioritizeSponsored(t *testing.T) {
	s := New(WithRand(NewSeededRand(2)), WithEasterProbability(0))
	pop := population(10, 10)

	t.Run("no sponsored profiles keeps the batch", func(t *testing.T) {
		batch := s.SelectBatch(pop)
		assert.Equal(t, batch, s.PrioritizeSponsored(batch, pop))
	})

	t.Run("sponsored profile outside the batch replaces its role in pair zero", func(t *testing.T) {
		withSponsor := append([]model.Profile(nil), pop...)
		withSponsor = append(withSponsor, model.Profile{
			ID: "sp", RoleGroup: model.RoleTechnical, Sponsored: true, SponsorName: "Acme", SessionTotalDelta: 4,
		})
		batch := s.SelectBatch(pop)
		out := s.PrioritizeSponsored(batch, withSponsor)

		require.Len(t, out, len(batch))
		assert.Equal(t, "sp", out[1].ID)
		assert.Zero(t, out[1].SessionTotalDelta)
		assert.Equal(t, batch[0], out[0])
		assert.Equal(t, batch[2:], out[2:])
		assert.NotEqual(t, out[0].RoleGroup, out[1].RoleGroup)
	})

	t.Run("sponsored profile already in the batch moves its pair first", func(t *testing.T) {
		batch := s.SelectBatch(pop)
		batch[7].Sponsored = true
		sponsoredID := batch[7].ID
		popCopy := append([]model.Profile(nil), pop...)
		for i := range popCopy {
			if popCopy[i].ID == sponsoredID {
				popCopy[i].Sponsored = true
			}
		}

		out := s.PrioritizeSponsored(batch, popCopy)
		assert.Equal(t, sponsoredID, out[1].ID)
		assert.Equal(t, batch[6].ID, out[0].ID)
		assert.Equal(t, batch[0].ID, out[6].ID)
		assert.Equal(t, batch[1].ID, out[7].ID)
	})
}

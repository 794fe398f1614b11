package playtest

import (
	"fmt"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// verifyRankings checks the shape and ordering of a rankings reply.
func verifyRankings(r model.Rankings, limit int) error {
	want := min(limit, r.Total)
	if len(r.Top) != want || len(r.Bottom) != want {
		return fmt.Errorf("expected %d entries per list, got top=%d bottom=%d", want, len(r.Top), len(r.Bottom))
	}
	if err := verifyList("top", r.Top, func(prev, cur float64) bool { return cur <= prev }); err != nil {
		return err
	}
	return verifyList("bottom", r.Bottom, func(prev, cur float64) bool { return cur >= prev })
}

func verifyList(name string, list []model.RankedProfile, ordered func(prev, cur float64) bool) error {
	for i, entry := range list {
		if entry.Rank != i+1 {
			return fmt.Errorf("%s entry %d has rank %d", name, i, entry.Rank)
		}
		if !entry.Profile.IsTechnical() {
			return fmt.Errorf("%s entry %d (%s) is not a technical profile", name, i, entry.Profile.ID)
		}
		if i > 0 && !ordered(list[i-1].Ratio, entry.Ratio) {
			return fmt.Errorf("%s list not properly sorted at entry %d", name, i)
		}
	}
	return nil
}

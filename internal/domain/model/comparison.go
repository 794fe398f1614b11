package model

import (
	"time"
)

// Variant selects how a batch is produced.
type Variant string

const (
	VariantDefault    Variant = "default"
	VariantFirstVisit Variant = "firstVisit"
	VariantSponsored  Variant = "sponsored"
)

// ParseVariant returns the variant named by s, or VariantDefault.
func ParseVariant(s string) Variant {
	switch Variant(s) {
	case VariantFirstVisit, VariantSponsored:
		return Variant(s)
	default:
		return VariantDefault
	}
}

// PairSize and BatchPairs give the shape of a full batch: ten profiles, five pairs.
const (
	PairSize   = 2
	BatchPairs = 5
	BatchSize  = PairSize * BatchPairs
)

// Batch is an ordered set of profiles consumed as adjacent pairs (2i, 2i+1).
type Batch struct {
	ID       string    `json:"batchId"`
	Variant  Variant   `json:"variant"`
	Profiles []Profile `json:"profiles"`
}

// Pairs is the number of complete pairs in the batch.
func (b Batch) Pairs() int { return len(b.Profiles) / PairSize }

// Pair returns the i-th pair. ok is false when i is out of range.
func (b Batch) Pair(i int) (left, right Profile, ok bool) {
	if i < 0 || i >= b.Pairs() {
		return Profile{}, Profile{}, false
	}
	return b.Profiles[2*i], b.Profiles[2*i+1], true
}

// Clone deep-copies the profile slice.
func (b Batch) Clone() Batch {
	out := b
	out.Profiles = append([]Profile(nil), b.Profiles...)
	return out
}

// ComparisonRequest is what the server needs to build a comparison.
type ComparisonRequest struct {
	FirstVisit bool
	Location   string
	Variant    Variant
	// Country is the two-letter code inferred from edge headers, if any.
	Country string
}

// ComparisonResponse is the /api/comparison payload. Matchups is the full
// batch; Person1/Person2 mirror its first pair.
type ComparisonResponse struct {
	Person1      *Profile  `json:"person1"`
	Person2      *Profile  `json:"person2"`
	IsFirstVisit bool      `json:"isFirstVisit"`
	Matchups     []Profile `json:"matchups,omitempty"`
	Variant      Variant   `json:"variant"`
	BatchID      string    `json:"batchId,omitempty"`
	Location     string    `json:"location,omitempty"`
}

// Batch converts the response into a playable batch.
func (r ComparisonResponse) Batch() Batch {
	b := Batch{ID: r.BatchID, Variant: r.Variant}
	switch {
	case len(r.Matchups) > 0:
		b.Profiles = append([]Profile(nil), r.Matchups...)
	case r.Person1 != nil && r.Person2 != nil:
		b.Profiles = []Profile{*r.Person1, *r.Person2}
	}
	return b
}

// StatsSubmission is the POST /api/stats body.
type StatsSubmission struct {
	BatchID string    `json:"batchId,omitempty"`
	People  []Profile `json:"people"`
}

// FlushJob carries a finished batch from the game to the stats pipeline.
type FlushJob struct {
	BatchID   string
	SessionID string
	People    []Profile
	Enqueued  time.Time
}

// AssetReport is a client-side missing image report.
type AssetReport struct {
	Reason    string         `json:"reason"`
	Timestamp string         `json:"timestamp,omitempty"`
	Person    map[string]any `json:"person,omitempty"`
	Extras    map[string]any `json:"-"`
}

// RankedProfile is one row of the rankings lists.
type RankedProfile struct {
	Rank    int     `json:"rank"`
	Profile Profile `json:"profile"`
	Ratio   float64 `json:"ratio"`
}

// Rankings is the GET /api/rankings payload.
type Rankings struct {
	Top    []RankedProfile `json:"top"`
	Bottom []RankedProfile `json:"bottom"`
	Total  int             `json:"total"`
}

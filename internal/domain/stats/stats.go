// Package stats accumulates per-session selection counts on a batch and
// folds them into persistent counters.
package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// RecordSelection returns a copy of batch where selectedID gained one
// success and one total, otherID gained one total, and every other
// profile is untouched. Only the first profile matching each ID is
// updated. Unknown IDs are ignored.
func RecordSelection(batch []model.Profile, selectedID, otherID string) []model.Profile {
	selected, other := -1, -1
	for i, p := range batch {
		switch {
		case selected < 0 && p.ID == selectedID:
			selected = i
		case other < 0 && p.ID == otherID:
			other = i
		}
	}
	return RecordSelectionAt(batch, selected, other)
}

// RecordSelectionAt is RecordSelection addressed by position, which is
// what a displayed pair knows. Out-of-range indexes are ignored.
func RecordSelectionAt(batch []model.Profile, selected, other int) []model.Profile {
	out := make([]model.Profile, len(batch))
	copy(out, batch)
	if selected >= 0 && selected < len(out) {
		out[selected].SessionSuccessDelta++
		out[selected].SessionTotalDelta++
	}
	if other >= 0 && other < len(out) && other != selected {
		out[other].SessionTotalDelta++
	}
	return out
}

// Increments lists the profiles with something to persist, one entry per
// ID in first-seen order. Repeated profiles are summed so a flush never
// writes the same record twice.
func Increments(batch []model.Profile) []model.Increment {
	var out []model.Increment
	at := make(map[string]int, len(batch))
	for _, p := range batch {
		if p.SessionTotalDelta <= 0 {
			continue
		}
		if i, ok := at[p.ID]; ok {
			out[i].Success += p.SessionSuccessDelta
			out[i].Total += p.SessionTotalDelta
			continue
		}
		at[p.ID] = len(out)
		out = append(out, model.IncrementOf(p))
	}
	return out
}

// Validate rejects submissions that could corrupt the counters.
func Validate(people []model.Profile) error {
	for _, p := range people {
		switch {
		case p.ID == "":
			return fmt.Errorf("%w: profile without id", model.ErrInvalidSubmission)
		case p.SessionSuccessDelta < 0 || p.SessionTotalDelta < 0:
			return fmt.Errorf("%w: negative delta for %s", model.ErrInvalidSubmission, p.ID)
		case p.SessionSuccessDelta > p.SessionTotalDelta:
			return fmt.Errorf("%w: success exceeds total for %s", model.ErrInvalidSubmission, p.ID)
		}
	}
	return nil
}

// Updater persists one increment.
type Updater interface {
	ApplyIncrement(ctx context.Context, inc model.Increment) error
}

// UpdaterFunc adapts a function to Updater.
type UpdaterFunc func(ctx context.Context, inc model.Increment) error

// ApplyIncrement calls f.
func (f UpdaterFunc) ApplyIncrement(ctx context.Context, inc model.Increment) error {
	return f(ctx, inc)
}

// Result summarises a flush.
type Result struct {
	Applied int
	Failed  int
}

type flushOptions struct {
	concurrency int
}

// FlushOption configures Flush.
type FlushOption func(*flushOptions)

// WithConcurrency bounds parallel store writes. 1 means sequential.
func WithConcurrency(n int) FlushOption {
	return func(o *flushOptions) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// Flush writes one increment per profile ID with a positive total delta.
// Failures do not stop the remaining writes; all of them are joined into
// the returned error.
func Flush(ctx context.Context, u Updater, batch []model.Profile, opts ...FlushOption) (Result, error) {
	const op = "stats.Flush"
	o := flushOptions{concurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}

	incs := Increments(batch)
	if len(incs) == 0 {
		return Result{}, nil
	}

	var (
		mu   sync.Mutex
		errs []error
		res  Result
	)
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for _, inc := range incs {
		g.Go(func() error {
			err := ctx.Err()
			if err == nil {
				err = u.ApplyIncrement(ctx, inc)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				errs = append(errs, fmt.Errorf("%s %s: %w", op, inc.ProfileID, err))
				return nil
			}
			res.Applied++
			return nil
		})
	}
	_ = g.Wait()
	return res, errors.Join(errs...)
}

// Package variant decides which kind of batch a session is served next.
package variant

import (
	"context"
	"fmt"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// Persisted flag keys.
const (
	KeyHasVisited              = "hasVisited"
	KeyHasSeenSponsoredVariant = "hasSeenSponsoredVariant"
)

// Flags are the per-visitor facts the decision depends on.
type Flags struct {
	HasVisitedBefore        bool
	HasSeenSponsoredVariant bool
}

// Resolve is the pure decision: a first visit gets the intro pair, the next
// fresh batch is sponsored once, and everything after is default.
func Resolve(f Flags) model.Variant {
	switch {
	case !f.HasVisitedBefore:
		return model.VariantFirstVisit
	case !f.HasSeenSponsoredVariant:
		return model.VariantSponsored
	default:
		return model.VariantDefault
	}
}

// FlagStore persists boolean flags across sessions.
type FlagStore interface {
	Flag(ctx context.Context, key string) (bool, error)
	SetFlag(ctx context.Context, key string, v bool) error
}

// Resolver ties Resolve to a FlagStore.
type Resolver struct {
	store FlagStore
}

// NewResolver creates a Resolver over store.
func NewResolver(store FlagStore) *Resolver {
	return &Resolver{store: store}
}

// Flags reads the current flags.
func (r *Resolver) Flags(ctx context.Context) (Flags, error) {
	const op = "variant.Flags"
	visited, err := r.store.Flag(ctx, KeyHasVisited)
	if err != nil {
		return Flags{}, fmt.Errorf("%s: %w", op, err)
	}
	sponsored, err := r.store.Flag(ctx, KeyHasSeenSponsoredVariant)
	if err != nil {
		return Flags{}, fmt.Errorf("%s: %w", op, err)
	}
	return Flags{HasVisitedBefore: visited, HasSeenSponsoredVariant: sponsored}, nil
}

// Next returns the variant for the next fresh batch. It does not change any flag.
func (r *Resolver) Next(ctx context.Context) (model.Variant, error) {
	f, err := r.Flags(ctx)
	if err != nil {
		return model.VariantDefault, err
	}
	return Resolve(f), nil
}

// MarkServed records that v was shown. It returns true only when a flag
// actually flipped; serving the same variant again is a no-op.
func (r *Resolver) MarkServed(ctx context.Context, v model.Variant) (bool, error) {
	const op = "variant.MarkServed"
	var key string
	switch v {
	case model.VariantFirstVisit:
		key = KeyHasVisited
	case model.VariantSponsored:
		key = KeyHasSeenSponsoredVariant
	default:
		return false, nil
	}

	already, err := r.store.Flag(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if already {
		return false, nil
	}
	if err := r.store.SetFlag(ctx, key, true); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}

// Package repository persists profiles and their success counters.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/ceoorcto/internal/domain/model"
)

// Store provides read/write access to the profile population.
type Store interface {
	// All returns every profile ordered by id.
	All(ctx context.Context) ([]model.Profile, error)
	// ByLocation returns profiles whose location equals loc, ignoring case.
	ByLocation(ctx context.Context, loc string) ([]model.Profile, error)
	// Get returns one profile or model.ErrNotFound.
	Get(ctx context.Context, id string) (model.Profile, error)
	// GetMany returns the profiles found among ids, in the order of ids.
	GetMany(ctx context.Context, ids []string) ([]model.Profile, error)
	// Put upserts profiles. Session deltas are ignored.
	Put(ctx context.Context, profiles ...model.Profile) error
	// ApplyIncrement adds inc to the stored counters of inc.ProfileID.
	ApplyIncrement(ctx context.Context, inc model.Increment) error
	// Count returns the population size.
	Count(ctx context.Context) (int, error)
	// Locations returns the distinct non-empty locations.
	Locations(ctx context.Context) ([]string, error)

	Close() error
}

// validateProfile enforces the stored invariants.
func validateProfile(p model.Profile) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidProfile)
	case !p.RoleGroup.Valid():
		return fmt.Errorf("%w: %s has role group %q", ErrInvalidProfile, p.ID, p.RoleGroup)
	case p.SuccessCount < 0 || p.TotalCount < 0 || p.SuccessCount > p.TotalCount:
		return fmt.Errorf("%w: %s has counters %d/%d", ErrInvalidProfile, p.ID, p.SuccessCount, p.TotalCount)
	}
	return nil
}

func validateIncrement(inc model.Increment) error {
	if inc.ProfileID == "" || inc.Success < 0 || inc.Total < 0 || inc.Success > inc.Total {
		return fmt.Errorf("%w: %+v", ErrInvalidIncrement, inc)
	}
	return nil
}

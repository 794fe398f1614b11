package repository

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/ceoorcto/internal/domain/model"
)

//go:embed seed/default.yaml
var defaultSeed []byte

type seedFile struct {
	Profiles []model.Profile `yaml:"profiles"`
}

// ParseSeed decodes a population from YAML or JSON. Both a top-level list
// and a document with a "profiles" key are accepted.
func ParseSeed(raw []byte) ([]model.Profile, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrSeed)
	}

	var profiles []model.Profile
	if raw[0] == '[' || raw[0] == '-' {
		if err := yaml.Unmarshal(raw, &profiles); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSeed, err)
		}
	} else {
		var doc seedFile
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSeed, err)
		}
		profiles = doc.Profiles
	}

	seen := make(map[string]bool, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		if !p.RoleGroup.Valid() {
			p.RoleGroup = model.ParseRoleGroup(p.Role)
		}
		if err := validateProfile(*p); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrSeed, i, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrSeed, p.ID)
		}
		seen[p.ID] = true
	}
	return profiles, nil
}

// LoadSeed reads a seed file, or the embedded default population when path is empty.
func LoadSeed(path string) ([]model.Profile, error) {
	if path == "" {
		return ParseSeed(defaultSeed)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("repository.LoadSeed: %w", err)
	}
	return ParseSeed(raw)
}

// Seed loads path (or the default population) into store.
func Seed(ctx context.Context, store Store, path string) (int, error) {
	profiles, err := LoadSeed(path)
	if err != nil {
		return 0, err
	}
	if err := store.Put(ctx, profiles...); err != nil {
		return 0, fmt.Errorf("repository.Seed: %w", err)
	}
	return len(profiles), nil
}

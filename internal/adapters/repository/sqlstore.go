package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/okian/ceoorcto/internal/domain/model"
)

const defaultTable = "profiles"

var profileColumns = []string{
	"id", "name", "company", "role", "role_group", "image_url", "alternate_image_url",
	"location", "success_count", "total_count", "sponsor_name", "sponsor_url",
	"sponsored", "linkedin_profile_url",
}

// SQLStore persists profiles in Postgres.
type SQLStore struct {
	db               *sql.DB
	table            string
	atomicIncrements bool
	sb               sq.StatementBuilderType
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database handle. The caller owns driver
// registration (lib/pq) and connection settings.
func NewSQLStore(db *sql.DB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{
		db:    db,
		table: defaultTable,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the profiles table when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL DEFAULT '',
	company              TEXT NOT NULL DEFAULT '',
	role                 TEXT NOT NULL DEFAULT '',
	role_group           TEXT NOT NULL CHECK (role_group IN ('executive', 'technical')),
	image_url            TEXT NOT NULL DEFAULT '',
	alternate_image_url  TEXT NOT NULL DEFAULT '',
	location             TEXT NOT NULL DEFAULT '',
	success_count        INTEGER NOT NULL DEFAULT 0 CHECK (success_count >= 0),
	total_count          INTEGER NOT NULL DEFAULT 0 CHECK (total_count >= success_count),
	sponsor_name         TEXT NOT NULL DEFAULT '',
	sponsor_url          TEXT NOT NULL DEFAULT '',
	sponsored            BOOLEAN NOT NULL DEFAULT FALSE,
	linkedin_profile_url TEXT NOT NULL DEFAULT ''
)`, pq.QuoteIdentifier(s.table))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("repository.Migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) selectProfiles() sq.SelectBuilder {
	return s.sb.Select(profileColumns...).From(s.table).OrderBy("id")
}

func (s *SQLStore) query(ctx context.Context, op string, b sq.SelectBuilder) ([]model.Profile, error) {
	defer observe(op, time.Now())
	q, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("repository.%s: build: %w", op, err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.%s: query: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Profile
	for rows.Next() {
		var p model.Profile
		var group string
		if err := rows.Scan(&p.ID, &p.Name, &p.Company, &p.Role, &group, &p.ImageURL, &p.AlternateImageURL,
			&p.Location, &p.SuccessCount, &p.TotalCount, &p.SponsorName, &p.SponsorURL,
			&p.Sponsored, &p.LinkedInProfileURL); err != nil {
			return nil, fmt.Errorf("repository.%s: scan: %w", op, err)
		}
		p.RoleGroup = model.RoleGroup(group)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.%s: rows: %w", op, err)
	}
	return out, nil
}

// All implements Store.
func (s *SQLStore) All(ctx context.Context) ([]model.Profile, error) {
	return s.query(ctx, "all", s.selectProfiles())
}

// ByLocation implements Store.
func (s *SQLStore) ByLocation(ctx context.Context, loc string) ([]model.Profile, error) {
	return s.query(ctx, "by_location", s.byLocationQuery(loc))
}

func (s *SQLStore) byLocationQuery(loc string) sq.SelectBuilder {
	return s.selectProfiles().Where(sq.Expr("LOWER(location) = LOWER(?)", loc))
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, id string) (model.Profile, error) {
	out, err := s.query(ctx, "get", s.selectProfiles().Where(sq.Eq{"id": id}).Limit(1))
	if err != nil {
		return model.Profile{}, err
	}
	if len(out) == 0 {
		return model.Profile{}, fmt.Errorf("repository.Get %s: %w", id, model.ErrNotFound)
	}
	return out[0], nil
}

// GetMany implements Store.
func (s *SQLStore) GetMany(ctx context.Context, ids []string) ([]model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.query(ctx, "get_many", s.getManyQuery(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Profile, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	out := make([]model.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLStore) getManyQuery(ids []string) sq.SelectBuilder {
	return s.selectProfiles().Where("id = ANY(?)", pq.Array(ids))
}

func (s *SQLStore) upsertQuery(profiles []model.Profile) sq.InsertBuilder {
	b := s.sb.Insert(s.table).Columns(profileColumns...)
	for _, p := range profiles {
		b = b.Values(p.ID, p.Name, p.Company, p.Role, string(p.RoleGroup), p.ImageURL, p.AlternateImageURL,
			p.Location, p.SuccessCount, p.TotalCount, p.SponsorName, p.SponsorURL, p.Sponsored, p.LinkedInProfileURL)
	}
	return b.Suffix(`ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, company = EXCLUDED.company, role = EXCLUDED.role,
	role_group = EXCLUDED.role_group, image_url = EXCLUDED.image_url,
	alternate_image_url = EXCLUDED.alternate_image_url, location = EXCLUDED.location,
	success_count = EXCLUDED.success_count, total_count = EXCLUDED.total_count,
	sponsor_name = EXCLUDED.sponsor_name, sponsor_url = EXCLUDED.sponsor_url,
	sponsored = EXCLUDED.sponsored, linkedin_profile_url = EXCLUDED.linkedin_profile_url`)
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, profiles ...model.Profile) error {
	const op = "repository.Put"
	defer observe("put", time.Now())
	if len(profiles) == 0 {
		return nil
	}
	for _, p := range profiles {
		if err := validateProfile(p); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if _, err := s.upsertQuery(profiles).RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLStore) atomicIncrementQuery(inc model.Increment) sq.UpdateBuilder {
	return s.sb.Update(s.table).
		Set("success_count", sq.Expr("success_count + ?", inc.Success)).
		Set("total_count", sq.Expr("total_count + ?", inc.Total)).
		Where(sq.Eq{"id": inc.ProfileID})
}

func (s *SQLStore) overwriteCountersQuery(p model.Profile) sq.UpdateBuilder {
	return s.sb.Update(s.table).
		Set("success_count", p.SuccessCount).
		Set("total_count", p.TotalCount).
		Where(sq.Eq{"id": p.ID})
}

// ApplyIncrement implements Store. Without atomic increments the counters
// are read, summed in Go, and written back, matching MemoryStore.
func (s *SQLStore) ApplyIncrement(ctx context.Context, inc model.Increment) error {
	const op = "repository.ApplyIncrement"
	defer observe("apply_increment", time.Now())
	if err := validateIncrement(inc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var b sq.UpdateBuilder
	if s.atomicIncrements {
		b = s.atomicIncrementQuery(inc)
	} else {
		current, err := s.Get(ctx, inc.ProfileID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		current.SuccessCount += inc.Success
		current.TotalCount += inc.Total
		b = s.overwriteCountersQuery(current)
	}

	res, err := b.RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", op, inc.ProfileID, model.ErrNotFound)
	}
	return nil
}

// Count implements Store.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.sb.Select("COUNT(*)").From(s.table).RunWith(s.db).QueryRowContext(ctx).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("repository.Count: %w", err)
	}
	return n, nil
}

// Locations implements Store.
func (s *SQLStore) Locations(ctx context.Context) ([]string, error) {
	q, args, err := s.sb.Select("DISTINCT location").From(s.table).
		Where(sq.NotEq{"location": ""}).OrderBy("location").ToSql()
	if err != nil {
		return nil, fmt.Errorf("repository.Locations: build: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.Locations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("repository.Locations: scan: %w", err)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("repository.Close: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/metrics"
)

// MemoryStore keeps the population in memory. Reads are served from an
// immutable snapshot republished after every write.
//
// By default ApplyIncrement reads the profile, then writes the new counters
// in a separate critical section, so two flushes racing on the same
// profile can lose one update. WithAtomicIncrements closes that window.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]model.Profile

	snapshot atomic.Pointer[[]model.Profile]

	atomicIncrements      bool
	metricsUpdateInterval time.Duration

	// betweenReadAndWrite runs inside a read-modify-write increment; tests
	// use it to interleave a competing writer.
	betweenReadAndWrite func()

	closed   atomic.Bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store and starts its metrics updater.
// The updater stops when ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[string]model.Profile),
		metricsUpdateInterval: 5 * time.Second,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	empty := []model.Profile{}
	s.snapshot.Store(&empty)
	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateProfilesTotal(len(*s.snapshot.Load()))
			}
		}
	}()
}

// publish rebuilds the read snapshot. Callers hold s.mu.
func (s *MemoryStore) publish() {
	out := make([]model.Profile, 0, len(s.byID))
	for _, p := range s.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	s.snapshot.Store(&out)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}

func (s *MemoryStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

// All implements Store.
func (s *MemoryStore) All(ctx context.Context) ([]model.Profile, error) {
	defer observe("all", time.Now())
	if err := s.check(ctx); err != nil {
		return nil, fmt.Errorf("repository.All: %w", err)
	}
	snap := *s.snapshot.Load()
	return append([]model.Profile(nil), snap...), nil
}

// ByLocation implements Store.
func (s *MemoryStore) ByLocation(ctx context.Context, loc string) ([]model.Profile, error) {
	defer observe("by_location", time.Now())
	if err := s.check(ctx); err != nil {
		return nil, fmt.Errorf("repository.ByLocation: %w", err)
	}
	var out []model.Profile
	for _, p := range *s.snapshot.Load() {
		if strings.EqualFold(p.Location, loc) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Profile, error) {
	defer observe("get", time.Now())
	if err := s.check(ctx); err != nil {
		return model.Profile{}, fmt.Errorf("repository.Get: %w", err)
	}
	s.mu.Lock()
	p, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return model.Profile{}, fmt.Errorf("repository.Get %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

// GetMany implements Store.
func (s *MemoryStore) GetMany(ctx context.Context, ids []string) ([]model.Profile, error) {
	defer observe("get_many", time.Now())
	if err := s.check(ctx); err != nil {
		return nil, fmt.Errorf("repository.GetMany: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, profiles ...model.Profile) error {
	defer observe("put", time.Now())
	if err := s.check(ctx); err != nil {
		return fmt.Errorf("repository.Put: %w", err)
	}
	for _, p := range profiles {
		if err := validateProfile(p); err != nil {
			return fmt.Errorf("repository.Put: %w", err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		s.byID[p.ID] = p.ResetSession()
	}
	s.publish()
	return nil
}

// ApplyIncrement implements Store.
func (s *MemoryStore) ApplyIncrement(ctx context.Context, inc model.Increment) error {
	const op = "repository.ApplyIncrement"
	defer observe("apply_increment", time.Now())
	if err := s.check(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := validateIncrement(inc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if s.atomicIncrements {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.byID[inc.ProfileID]
		if !ok {
			return fmt.Errorf("%s %s: %w", op, inc.ProfileID, model.ErrNotFound)
		}
		p.SuccessCount += inc.Success
		p.TotalCount += inc.Total
		s.byID[p.ID] = p
		s.publish()
		return nil
	}

	current, err := s.Get(ctx, inc.ProfileID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if s.betweenReadAndWrite != nil {
		s.betweenReadAndWrite()
	}
	current.SuccessCount += inc.Success
	current.TotalCount += inc.Total

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[current.ID]; !ok {
		return fmt.Errorf("%s %s: %w", op, inc.ProfileID, model.ErrNotFound)
	}
	s.byID[current.ID] = current
	s.publish()
	return nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, fmt.Errorf("repository.Count: %w", err)
	}
	return len(*s.snapshot.Load()), nil
}

// Locations implements Store.
func (s *MemoryStore) Locations(ctx context.Context) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, fmt.Errorf("repository.Locations: %w", err)
	}
	seen := map[string]bool{}
	var out []string
	for _, p := range *s.snapshot.Load() {
		if p.Location != "" && !seen[p.Location] {
			seen[p.Location] = true
			out = append(out, p.Location)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Close stops the metrics updater. Further calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.stopChan)
	s.wg.Wait()
	return nil
}

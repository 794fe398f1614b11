package service

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/okian/ceoorcto/internal/adapters/repository"
	"github.com/okian/ceoorcto/internal/domain/matchup"
	"github.com/okian/ceoorcto/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the profile store. Without one, Start creates a memory
// store seeded with the embedded population.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithSeedFile seeds the default memory store from a file.
func WithSeedFile(path string) Option {
	return func(s *Service) { s.seedFile = path }
}

// WithAtomicIncrements is passed to the default memory store.
func WithAtomicIncrements(enabled bool) Option {
	return func(s *Service) { s.atomicIncrements = enabled }
}

// WithSelector replaces the matchup selector, e.g. to inject a seeded Rand.
func WithSelector(sel *matchup.Selector) Option {
	return func(s *Service) {
		if sel != nil {
			s.selector = sel
		}
	}
}

// WithMinPopulation sets the smallest population a batch is drawn from.
func WithMinPopulation(n int) Option {
	return func(s *Service) {
		if n >= 2 {
			s.minPopulation = n
		}
	}
}

// WithIntroProfiles sets the two profile ids served on a first visit.
func WithIntroProfiles(ids ...string) Option {
	return func(s *Service) {
		if len(ids) == 2 {
			s.introIDs = append([]string(nil), ids...)
		}
	}
}

// WithFlushConcurrency bounds concurrent store writes per submission.
func WithFlushConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.flushConcurrency = n
		}
	}
}

// WithDedupeSize bounds the remembered batch ids.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxRankingsLimit caps Rankings' limit.
func WithMaxRankingsLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRankingsLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used for service spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

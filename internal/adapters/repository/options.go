package repository

import "time"

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithAtomicIncrements makes ApplyIncrement a single critical section
// instead of a read followed by a separate write.
func WithAtomicIncrements(enabled bool) Option {
	return func(s *MemoryStore) {
		s.atomicIncrements = enabled
	}
}

// WithMetricsUpdateInterval sets how often the profile gauge is refreshed.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLAtomicIncrements makes ApplyIncrement a single UPDATE ... SET x = x + n.
func WithSQLAtomicIncrements(enabled bool) SQLOption {
	return func(s *SQLStore) {
		s.atomicIncrements = enabled
	}
}

// WithTable overrides the profiles table name.
func WithTable(name string) SQLOption {
	return func(s *SQLStore) {
		if name != "" {
			s.table = name
		}
	}
}

// Package playtest drives simulated players against a running server and
// checks that the rankings it publishes stay consistent.
package playtest

import (
	"sync/atomic"
	"time"
)

// Config holds configuration for a play test.
type Config struct {
	BaseURL  string        // Base URL of the service
	Players  int           // Number of simulated visitors
	Games    int           // Games per visitor
	Workers  int           // Visitors playing at once
	Timeout  time.Duration // HTTP request timeout
	Location string        // Category to play, empty for random
	// Accuracy is the chance a player picks the technical profile.
	Accuracy float64
	// MaxStreak ends a game with a deliberate miss so accurate players finish.
	MaxStreak int
	Top       int  // Rankings list length to verify
	Seed      uint64
	Verbose   bool // Log every finished game
}

// Stats holds play test statistics.
type Stats struct {
	GamesPlayed   atomic.Int64
	Selections    atomic.Int64
	Correct       atomic.Int64
	BestStreak    atomic.Int64
	BatchesQueued atomic.Int64
	Flushed       int64
	FlushFailed   int64
	Errors        atomic.Int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

func (s *Stats) recordStreak(n int) {
	for {
		cur := s.BestStreak.Load()
		if int64(n) <= cur || s.BestStreak.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

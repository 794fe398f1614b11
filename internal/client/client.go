// Package client is the game session engine: it fetches batches, caches
// and prefetches them, scores selections and hands finished batches to
// the stats pipeline. It is UI agnostic; a terminal or web front end
// drives a Controller and renders its View.
package client

import (
	"github.com/google/uuid"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/internal/domain/variant"
)

// State is the controller's position in the game loop.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateDisplaying State = "displaying"
	StateResolving  State = "resolving"
	StateGameOver   State = "gameOver"
)

// Side picks one member of the displayed pair.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Right {
		return "right"
	}
	return "left"
}

// PrefetchThreshold is how many unshown pairs may remain before the next
// batch is requested in the background.
const PrefetchThreshold = 2

// Result is the outcome of one selection.
type Result struct {
	Selected model.Profile `json:"selected"`
	Other    model.Profile `json:"other"`
	Correct  bool          `json:"correct"`
}

// View is a snapshot of everything a front end renders.
type View struct {
	SessionID   string
	State       State
	Left        *model.Profile
	Right       *model.Profile
	Variant     model.Variant
	Location    string
	BatchID     string
	Cursor      int
	Pairs       int
	Streak      int
	FinalScore  int
	Result      *Result
	Placeholder bool
	Prefetched  bool
	Err         error
}

// Remaining is the number of pairs not yet shown after the current one.
func (v View) Remaining() int {
	if v.Pairs == 0 {
		return 0
	}
	return max(v.Pairs-v.Cursor-1, 0)
}

// Session holds what outlives a single game: identity, persisted flags,
// the comparison cache and the preloaded image set.
type Session struct {
	ID        string
	Storage   Storage
	Cache     *Cache
	Variants  *variant.Resolver
	Preloader *Preloader
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionID overrides the generated session id.
func WithSessionID(id string) SessionOption {
	return func(s *Session) {
		if id != "" {
			s.ID = id
		}
	}
}

// WithCache replaces the default cache over the session storage.
func WithCache(c *Cache) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.Cache = c
		}
	}
}

// WithPreloader enables image preloading.
func WithPreloader(p *Preloader) SessionOption {
	return func(s *Session) {
		s.Preloader = p
	}
}

// NewSession creates a session over storage. A nil storage keeps
// everything in memory.
func NewSession(storage Storage, opts ...SessionOption) *Session {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Session{
		ID:       uuid.NewString(),
		Storage:  storage,
		Variants: variant.NewResolver(Flags(storage)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Cache == nil {
		s.Cache = NewCache(storage)
	}
	return s
}

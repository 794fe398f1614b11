package matchup

import (
	"math/rand/v2"
	"sync"
)

// Rand is the randomness the selector draws from. Tests inject a seeded
// or scripted source; production uses the runtime generator.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

type runtimeRand struct{}

func (runtimeRand) IntN(n int) int   { return rand.IntN(n) }
func (runtimeRand) Float64() float64 { return rand.Float64() }

// DefaultRand returns the goroutine-safe runtime source.
func DefaultRand() Rand { return runtimeRand{} }

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// NewSeededRand returns a reproducible, goroutine-safe source.
func NewSeededRand(seed uint64) Rand {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

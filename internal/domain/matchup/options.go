package matchup

// Option configures a Selector.
type Option func(*Selector)

// WithRand injects the random source.
func WithRand(r Rand) Option {
	return func(s *Selector) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithEasterProbability sets the chance of showing a profile's alternate image.
func WithEasterProbability(p float64) Option {
	return func(s *Selector) {
		if p >= 0 && p <= 1 {
			s.easterProbability = p
		}
	}
}

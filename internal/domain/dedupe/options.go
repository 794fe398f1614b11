package dedupe

const defaultMaxSize = 50_000

// Option configures the in-memory Deduper.
type Option func(*ringDeduper)

// WithMaxSize bounds how many IDs are remembered. Non-positive values keep the default.
func WithMaxSize(maxSize int) Option {
	return func(d *ringDeduper) {
		if maxSize > 0 {
			d.maxSize = maxSize
		}
	}
}

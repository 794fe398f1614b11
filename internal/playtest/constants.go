package playtest

import "time"

// Defaults used when a Config field is zero.
const (
	DefaultPlayers   = 8
	DefaultGames     = 3
	DefaultWorkers   = 4
	DefaultTimeout   = 10 * time.Second
	DefaultAccuracy  = 0.8
	DefaultMaxStreak = 25
	DefaultTop       = 5

	percentageMultiplier = 100
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.Players <= 0 {
		out.Players = DefaultPlayers
	}
	if out.Games <= 0 {
		out.Games = DefaultGames
	}
	if out.Workers <= 0 {
		out.Workers = DefaultWorkers
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Accuracy <= 0 || out.Accuracy > 1 {
		out.Accuracy = DefaultAccuracy
	}
	if out.MaxStreak <= 0 {
		out.MaxStreak = DefaultMaxStreak
	}
	if out.Top <= 0 {
		out.Top = DefaultTop
	}
	return out
}

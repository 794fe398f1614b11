package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/ceoorcto/internal/playtest"
)

func newSimulateCommand(root *rootOptions) *cobra.Command {
	cfg := &playtest.Config{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play many games concurrently and verify the rankings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.BaseURL = root.url
			stats, err := playtest.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d games, %d selections, best streak %d, %d batches flushed in %s\n",
				stats.GamesPlayed.Load(), stats.Selections.Load(), stats.BestStreak.Load(), stats.Flushed, stats.Duration)
			return err
		},
	}
	f := cmd.Flags()
	f.IntVar(&cfg.Players, "players", playtest.DefaultPlayers, "Number of simulated visitors")
	f.IntVar(&cfg.Games, "games", playtest.DefaultGames, "Games per visitor")
	f.IntVar(&cfg.Workers, "workers", playtest.DefaultWorkers, "Visitors playing at once")
	f.DurationVar(&cfg.Timeout, "timeout", playtest.DefaultTimeout, "HTTP request timeout")
	f.StringVar(&cfg.Location, "location", "", "Category to play (empty = random)")
	f.Float64Var(&cfg.Accuracy, "accuracy", playtest.DefaultAccuracy, "Chance a player picks the CTO")
	f.IntVar(&cfg.MaxStreak, "max-streak", playtest.DefaultMaxStreak, "Streak at which a player misses on purpose")
	f.IntVar(&cfg.Top, "top", playtest.DefaultTop, "Rankings length to verify")
	f.Uint64Var(&cfg.Seed, "seed", 1, "Random seed for player decisions")
	f.BoolVar(&cfg.Verbose, "verbose", false, "Log every finished game")
	return cmd
}

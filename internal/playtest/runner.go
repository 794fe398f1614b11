package playtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/ceoorcto/internal/client"
	"github.com/okian/ceoorcto/internal/domain/matchup"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

// Run plays the configured games and verifies the rankings afterwards.
// The returned Stats are filled in as far as the run got.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	cfg := config.withDefaults()
	stats := &Stats{StartTime: time.Now()}
	log := logger.Named("playtest")

	log.Info(ctx, "starting play test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("games", cfg.Games),
		logger.Int("workers", cfg.Workers),
		logger.Float64("accuracy", cfg.Accuracy),
		logger.String("location", cfg.Location),
	)

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if err := checkServiceHealth(ctx, httpClient, cfg.BaseURL); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	api, err := client.NewHTTPClient(cfg.BaseURL, client.WithHTTPClient(httpClient))
	if err != nil {
		return stats, err
	}
	async := client.NewAsyncFlusher(ctx, api,
		client.WithFlushWorkers(cfg.Workers),
		client.WithFlushCapacity(cfg.Players*cfg.Games*2),
		client.WithFlushLogger(log),
	)
	counted := client.FlusherFunc(func(ctx context.Context, job model.FlushJob) error {
		stats.BatchesQueued.Add(1)
		return async.Flush(ctx, job)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Players; i++ {
		rng := matchup.NewSeededRand(cfg.Seed + uint64(i))
		g.Go(func() error {
			return playVisitor(gctx, cfg, api, counted, rng, stats, log)
		})
	}
	playErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Timeout)
	defer cancel()
	if err := async.Close(closeCtx); err != nil {
		log.Warn(ctx, "pending batches were not flushed", logger.Error(err))
	}
	stats.Flushed, stats.FlushFailed = async.Stats()
	if playErr != nil {
		return stats, fmt.Errorf("play failed: %w", playErr)
	}

	rankings, err := api.Rankings(ctx, cfg.Top)
	if err != nil {
		return stats, fmt.Errorf("rankings retrieval failed: %w", err)
	}
	if err := verifyRankings(rankings, cfg.Top); err != nil {
		return stats, fmt.Errorf("rankings verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats, rankings)
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func playVisitor(ctx context.Context, cfg Config, api client.Fetcher, flusher client.Flusher, rng matchup.Rand, stats *Stats, log logger.Logger) error {
	session := client.NewSession(nil)
	c := client.NewController(session, api,
		client.WithFlusher(flusher),
		client.WithRand(rng),
		client.WithDwell(0),
		client.WithLocation(cfg.Location),
		client.WithLogger(log),
	)
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	for game := 0; game < cfg.Games; game++ {
		if game > 0 {
			if err := c.Reset(); err != nil {
				return err
			}
		}
		score, err := playGame(ctx, c, rng, cfg, stats)
		if err != nil {
			stats.Errors.Add(1)
			return fmt.Errorf("session %s: %w", session.ID, err)
		}
		stats.GamesPlayed.Add(1)
		stats.recordStreak(score)
		if cfg.Verbose {
			log.Info(ctx, "game over", logger.String("session_id", session.ID), logger.Int("game", game), logger.Int("score", score))
		}
	}
	return nil
}

func playGame(ctx context.Context, c *client.Controller, rng matchup.Rand, cfg Config, stats *Stats) (int, error) {
	for {
		v, err := c.Await(ctx, func(v client.View) bool {
			return v.State == client.StateGameOver || v.Err != nil ||
				(v.State == client.StateDisplaying && v.Result == nil)
		})
		if err != nil {
			return 0, err
		}
		switch {
		case v.State == client.StateGameOver:
			return v.FinalScore, nil
		case v.Err != nil:
			return 0, v.Err
		}

		res, err := c.Select(choose(v, rng, cfg))
		if errors.Is(err, client.ErrSelectionIgnored) {
			continue
		}
		if err != nil {
			return 0, err
		}
		stats.Selections.Add(1)
		if res.Correct {
			stats.Correct.Add(1)
		}
	}
}

// choose picks the technical profile with probability Accuracy and always
// misses once the streak reaches MaxStreak.
func choose(v client.View, rng matchup.Rand, cfg Config) client.Side {
	technical, other := client.Left, client.Right
	if v.Right != nil && v.Right.IsTechnical() {
		technical, other = client.Right, client.Left
	}
	if v.Streak >= cfg.MaxStreak || rng.Float64() >= cfg.Accuracy {
		return other
	}
	return technical
}

// displayFinalStats logs the final play test statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats, rankings model.Rankings) {
	var accuracy, selectionsPerSecond float64
	selections := stats.Selections.Load()
	if selections > 0 {
		accuracy = float64(stats.Correct.Load()) / float64(selections) * percentageMultiplier
	}
	if stats.Duration > 0 {
		selectionsPerSecond = float64(selections) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int64("gamesPlayed", stats.GamesPlayed.Load()),
		logger.Int64("selections", selections),
		logger.Float64("accuracy", accuracy),
		logger.Int64("bestStreak", stats.BestStreak.Load()),
		logger.Int64("batchesQueued", stats.BatchesQueued.Load()),
		logger.Int64("batchesFlushed", stats.Flushed),
		logger.Int64("batchesFailed", stats.FlushFailed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("selectionsPerSecond", selectionsPerSecond),
	)
	for _, r := range rankings.Top {
		log.Info(ctx, "most recognised CTO",
			logger.Int("rank", r.Rank),
			logger.String("name", r.Profile.Name),
			logger.Float64("ratio", r.Ratio),
		)
	}
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/ceoorcto/internal/adapters/http/api"
	"github.com/okian/ceoorcto/internal/adapters/http/site"
	"github.com/okian/ceoorcto/internal/adapters/http/swagger"
	"github.com/okian/ceoorcto/internal/adapters/repository"
	service "github.com/okian/ceoorcto/internal/app"
	"github.com/okian/ceoorcto/internal/config"
	"github.com/okian/ceoorcto/internal/domain/matchup"
	"github.com/okian/ceoorcto/pkg/logger"
	"github.com/okian/ceoorcto/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "server exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(logger.Format(cfg.LogFormat))); err != nil {
		return err
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	svc := newService(cfg, store, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openStore returns the configured Postgres store, seeded when empty. It
// returns nil for the memory driver; the service then builds its own.
func openStore(ctx context.Context, cfg *config.Config) (*repository.SQLStore, error) {
	if cfg.StoreDriver != config.DriverPostgres {
		return nil, nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := repository.NewSQLStore(db, repository.WithSQLAtomicIncrements(cfg.AtomicIncrements))
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	n, err := store.Count(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if n == 0 {
		if n, err = repository.Seed(ctx, store, cfg.SeedFile); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Get().Info(ctx, "database seeded", logger.Int("profiles", n))
	}
	return store, nil
}

func newService(cfg *config.Config, store *repository.SQLStore, log logger.Logger) *service.Service {
	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithSeedFile(cfg.SeedFile),
		service.WithAtomicIncrements(cfg.AtomicIncrements),
		service.WithSelector(matchup.New(matchup.WithEasterProbability(cfg.EasterProbability))),
		service.WithMinPopulation(cfg.MinPopulation),
		service.WithIntroProfiles(cfg.IntroProfileIDs...),
		service.WithFlushConcurrency(cfg.FlushConcurrency),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithMaxRankingsLimit(cfg.MaxRankingsLimit),
	}
	if store != nil {
		opts = append(opts, service.WithStore(store))
	}
	return service.New(opts...)
}

func newMux(ctx context.Context, cfg *config.Config, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc,
		api.WithProduction(cfg.IsProduction()),
		api.WithReportLimit(cfg.ReportRatePerSec, cfg.ReportBurst),
		api.WithRequestTimeout(cfg.RequestTimeout),
	).Register(ctx, mux)
	site.Register(ctx, mux, site.NewHandler(svc, service.DefaultRankingsLimit))
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes gauges derived from service stats.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats publishes the profile gauge itself.
			_ = svc.GetStats()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// Package service implements the matchup game on top of a profile store:
// it serves comparisons, folds submitted session stats into the store and
// reports rankings.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/okian/ceoorcto/internal/adapters/mq/queue"
	"github.com/okian/ceoorcto/internal/adapters/repository"
	"github.com/okian/ceoorcto/internal/domain/dedupe"
	"github.com/okian/ceoorcto/internal/domain/matchup"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/internal/domain/regions"
	"github.com/okian/ceoorcto/internal/domain/stats"
	"github.com/okian/ceoorcto/pkg/logger"
	"github.com/okian/ceoorcto/pkg/metrics"
)

// DefaultRankingsLimit is the list length when none is requested.
const DefaultRankingsLimit = 5

// populationLoadTimeout bounds a shared population load, which no longer
// follows any single caller's context.
const populationLoadTimeout = 10 * time.Second

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// SubmitResult reports what a stats submission changed.
type SubmitResult struct {
	Updated   int  `json:"updated"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// Service implements the API dependencies for the game.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	ownStore bool
	selector *matchup.Selector
	deduper  dedupe.Deduper
	regions  atomic.Pointer[regions.Resolver]
	loads    singleflight.Group

	seedFile         string
	atomicIncrements bool
	minPopulation    int
	introIDs         []string
	flushConcurrency int
	dedupeSize       int
	maxRankingsLimit int

	started bool
	logger  logger.Logger
	tracer  trace.Tracer

	comparisons atomic.Int64
	submissions atomic.Int64
	duplicates  atomic.Int64
	reports     atomic.Int64
}

// New constructs a Service. Call Start before use.
func New(opts ...Option) *Service {
	s := &Service{
		selector:         matchup.New(),
		minPopulation:    2,
		introIDs:         []string{"yo", "mati"},
		flushConcurrency: 4,
		dedupeSize:       50_000,
		maxRankingsLimit: 100,
		tracer:           otel.Tracer("ceoorcto/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start prepares the store, the deduper and the region index.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	if s.store == nil {
		mem := repository.NewMemoryStore(ctx, repository.WithAtomicIncrements(s.atomicIncrements))
		n, err := repository.Seed(ctx, mem, s.seedFile)
		if err != nil {
			_ = mem.Close()
			return fmt.Errorf("service.Start: %w", err)
		}
		s.store = mem
		s.ownStore = true
		s.logger.Info(ctx, "memory store seeded", logger.Int("profiles", n), logger.String("seed", s.seedFile))
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	if err := s.refreshRegions(ctx); err != nil {
		return fmt.Errorf("service.Start: %w", err)
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("service.Start: %w", err)
	}
	metrics.UpdateProfilesTotal(count)

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("profiles", count),
		logger.Int("min_population", s.minPopulation),
		logger.Int("flush_concurrency", s.flushConcurrency),
	)
	return nil
}

// refreshRegions rebuilds the location index from the store.
func (s *Service) refreshRegions(ctx context.Context) error {
	locs, err := s.store.Locations(ctx)
	if err != nil {
		return err
	}
	s.regions.Store(regions.New(locs...))
	return nil
}

// Stop releases the store when the service created it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.ownStore {
		_ = s.store.Close()
	}
	s.started = false
	s.logger.Info(context.Background(), "service stopped")
}

func (s *Service) ready() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

func (s *Service) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Comparison builds the next batch for a visitor.
func (s *Service) Comparison(ctx context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error) {
	const op = "service.Comparison"
	ctx, span := s.span(ctx, "Service.Comparison",
		attribute.Bool("first_visit", req.FirstVisit),
		attribute.String("variant", string(req.Variant)),
		attribute.String("location", req.Location),
	)
	defer span.End()

	if err := s.ready(); err != nil {
		return model.ComparisonResponse{}, fail(span, fmt.Errorf("%s: %w", op, err))
	}

	var (
		resp model.ComparisonResponse
		err  error
	)
	if req.FirstVisit || req.Variant == model.VariantFirstVisit {
		resp, err = s.introComparison(ctx)
	} else {
		resp, err = s.batchComparison(ctx, req)
	}
	if err != nil {
		metrics.RecordErrorByComponent("service", errorType(err))
		return model.ComparisonResponse{}, fail(span, fmt.Errorf("%s: %w", op, err))
	}

	s.comparisons.Add(1)
	metrics.RecordComparisonServed(string(resp.Variant))
	span.SetAttributes(attribute.Int("batch_size", len(resp.Matchups)), attribute.String("batch_id", resp.BatchID))
	return resp, nil
}

func (s *Service) introComparison(ctx context.Context) (model.ComparisonResponse, error) {
	pair, err := s.store.GetMany(ctx, s.introIDs)
	if err != nil {
		return model.ComparisonResponse{}, err
	}
	if len(pair) != 2 {
		return model.ComparisonResponse{}, model.ErrIntroProfilesMissing
	}
	pair[0], pair[1] = pair[0].ResetSession(), pair[1].ResetSession()
	pair = s.selector.Orient(pair)
	return model.ComparisonResponse{
		Person1:      &pair[0],
		Person2:      &pair[1],
		IsFirstVisit: true,
		Matchups:     pair,
		Variant:      model.VariantFirstVisit,
	}, nil
}

func (s *Service) batchComparison(ctx context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error) {
	res := s.regions.Load()
	loc := res.Infer(req.Location, req.Country)
	explicit := res.Normalize(req.Location) != model.LocationRandom

	population, err := s.population(ctx, loc)
	if err != nil {
		return model.ComparisonResponse{}, err
	}
	if len(population) < s.minPopulation && !explicit && loc != model.LocationRandom {
		// A location guessed from the visitor's country is only a preference.
		loc = model.LocationRandom
		if population, err = s.population(ctx, loc); err != nil {
			return model.ComparisonResponse{}, err
		}
	}
	if len(population) < s.minPopulation {
		return model.ComparisonResponse{}, fmt.Errorf("%w: %d profiles in %q, need %d",
			model.ErrInsufficientPopulation, len(population), loc, s.minPopulation)
	}

	start := time.Now()
	batch, mode := s.selector.SelectBatchMode(population)
	variant := model.ParseVariant(string(req.Variant))
	if variant == model.VariantSponsored {
		batch = s.selector.PrioritizeSponsored(batch, population)
	}
	batch = s.selector.Orient(batch)
	metrics.RecordSelectionLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordBatchSelected(string(mode))

	resp := model.ComparisonResponse{
		Matchups: batch,
		Variant:  variant,
		BatchID:  uuid.NewString(),
		Location: loc,
	}
	if len(batch) >= 2 {
		resp.Person1, resp.Person2 = &batch[0], &batch[1]
	}
	s.logger.Debug(ctx, "batch selected",
		logger.String("batch_id", resp.BatchID),
		logger.String("mode", string(mode)),
		logger.String("location", loc),
		logger.Int("population", len(population)),
	)
	return resp, nil
}

// population loads the eligible profiles for loc. Concurrent loads of the
// same location share one store call; a caller that goes away stops
// waiting without failing the others.
func (s *Service) population(ctx context.Context, loc string) ([]model.Profile, error) {
	ch := s.loads.DoChan(loc, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), populationLoadTimeout)
		defer cancel()
		if loc == model.LocationRandom {
			return s.store.All(lctx)
		}
		return s.store.ByLocation(lctx, loc)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		shared := r.Val.([]model.Profile)
		return append([]model.Profile(nil), shared...), nil
	}
}

// SubmitStats persists a finished batch. A batch id already seen is
// acknowledged without touching the store.
func (s *Service) SubmitStats(ctx context.Context, sub model.StatsSubmission) (SubmitResult, error) {
	const op = "service.SubmitStats"
	ctx, span := s.span(ctx, "Service.SubmitStats",
		attribute.String("batch_id", sub.BatchID),
		attribute.Int("people", len(sub.People)),
	)
	defer span.End()

	if err := s.ready(); err != nil {
		return SubmitResult{}, fail(span, fmt.Errorf("%s: %w", op, err))
	}
	if err := stats.Validate(sub.People); err != nil {
		return SubmitResult{}, fail(span, fmt.Errorf("%s: %w", op, err))
	}
	if len(stats.Increments(sub.People)) == 0 {
		return SubmitResult{}, nil
	}

	if sub.BatchID != "" && s.deduper.SeenAndRecord(ctx, sub.BatchID) {
		s.duplicates.Add(1)
		metrics.RecordStatsDuplicate()
		s.logger.Info(ctx, "duplicate stats submission ignored", logger.String("batch_id", sub.BatchID))
		return SubmitResult{Duplicate: true}, nil
	}

	start := time.Now()
	res, err := stats.Flush(ctx, s.store, sub.People, stats.WithConcurrency(s.flushConcurrency))
	metrics.RecordFlushLatency(float64(time.Since(start).Microseconds()) / 1000)
	metrics.RecordProfileUpdates(res.Applied)
	if err != nil {
		metrics.RecordFlushError()
		if res.Applied == 0 && sub.BatchID != "" {
			s.deduper.Unrecord(ctx, sub.BatchID)
		}
		s.logger.Error(ctx, "stats flush failed",
			logger.String("batch_id", sub.BatchID),
			logger.Int("applied", res.Applied),
			logger.Int("failed", res.Failed),
			logger.Error(err),
		)
		return SubmitResult{Updated: res.Applied}, fail(span, fmt.Errorf("%s: %w", op, err))
	}

	s.submissions.Add(1)
	metrics.RecordStatsSubmission()
	return SubmitResult{Updated: res.Applied}, nil
}

// Submit lets the service act as the flush worker's sink in-process.
func (s *Service) Submit(ctx context.Context, job queue.Job) error {
	_, err := s.SubmitStats(ctx, model.StatsSubmission{BatchID: job.BatchID, People: job.People})
	return err
}

// ReportMissingAsset records a client report of a broken image.
func (s *Service) ReportMissingAsset(ctx context.Context, report model.AssetReport) {
	if report.Reason == "" {
		report.Reason = "unspecified"
	}
	s.reports.Add(1)
	metrics.RecordMissingAsset(report.Reason)
	s.logger.Warn(ctx, "missing image report",
		logger.String("reason", report.Reason),
		logger.String("timestamp", report.Timestamp),
		logger.Any("person", report.Person),
		logger.Any("extras", report.Extras),
	)
}

// Rankings lists technical profiles by success ratio: the most and the
// least recognisable.
func (s *Service) Rankings(ctx context.Context, limit int) (model.Rankings, error) {
	const op = "service.Rankings"
	ctx, span := s.span(ctx, "Service.Rankings", attribute.Int("limit", limit))
	defer span.End()

	if err := s.ready(); err != nil {
		return model.Rankings{}, fail(span, fmt.Errorf("%s: %w", op, err))
	}
	if limit <= 0 {
		limit = DefaultRankingsLimit
	}
	limit = min(limit, s.maxRankingsLimit)

	all, err := s.store.All(ctx)
	if err != nil {
		return model.Rankings{}, fail(span, fmt.Errorf("%s: %w", op, err))
	}
	var techs []model.Profile
	for _, p := range all {
		if p.IsTechnical() {
			techs = append(techs, p)
		}
	}

	sort.SliceStable(techs, func(i, j int) bool {
		ri, rj := techs[i].SuccessRatio(), techs[j].SuccessRatio()
		if ri != rj {
			return ri > rj
		}
		return techs[i].TotalCount > techs[j].TotalCount
	})

	out := model.Rankings{Total: len(techs)}
	n := min(limit, len(techs))
	for i := 0; i < n; i++ {
		out.Top = append(out.Top, model.RankedProfile{Rank: i + 1, Profile: techs[i], Ratio: techs[i].SuccessRatio()})
		last := techs[len(techs)-1-i]
		out.Bottom = append(out.Bottom, model.RankedProfile{Rank: i + 1, Profile: last, Ratio: last.SuccessRatio()})
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	out := map[string]any{
		"started":          started,
		"minPopulation":    s.minPopulation,
		"flushConcurrency": s.flushConcurrency,
		"comparisons":      s.comparisons.Load(),
		"submissions":      s.submissions.Load(),
		"duplicates":       s.duplicates.Load(),
		"assetReports":     s.reports.Load(),
	}
	if started {
		if n, err := s.store.Count(context.Background()); err == nil {
			out["profiles"] = n
			metrics.UpdateProfilesTotal(n)
		}
		out["dedupeSize"] = s.deduper.Size()
	}
	return out
}

func errorType(err error) string {
	switch {
	case errors.Is(err, model.ErrInsufficientPopulation):
		return "insufficient_population"
	case errors.Is(err, model.ErrIntroProfilesMissing):
		return "intro_missing"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "store"
	}
}

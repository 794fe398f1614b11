package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ceoorcto/internal/adapters/repository"
	service "github.com/okian/ceoorcto/internal/app"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/internal/domain/variant"
	"github.com/okian/ceoorcto/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// population builds n executives and n technical profiles with distinct ratios.
func population(n int, location string) []model.Profile {
	var out []model.Profile
	for i := 0; i < n; i++ {
		out = append(out,
			model.Profile{ID: fmt.Sprintf("ceo-%d", i), Name: fmt.Sprintf("CEO %d", i), RoleGroup: model.RoleExecutive,
				Location: location, SuccessCount: i, TotalCount: 10, ImageURL: fmt.Sprintf("/img/ceo-%d.jpg", i)},
			model.Profile{ID: fmt.Sprintf("cto-%d", i), Name: fmt.Sprintf("CTO %d", i), RoleGroup: model.RoleTechnical,
				Location: location, SuccessCount: 10 - i, TotalCount: 10, ImageURL: fmt.Sprintf("/img/cto-%d.jpg", i)},
		)
	}
	return out
}

func startService(ctx context.Context, profiles []model.Profile) (*service.Service, *repository.MemoryStore) {
	store := repository.NewMemoryStore(ctx)
	So(store.Put(ctx, profiles...), ShouldBeNil)
	svc := service.New(service.WithStore(store), service.WithLogger(logger.Nop()))
	So(svc.Start(ctx), ShouldBeNil)
	return svc, store
}

// returningSession is a session whose visitor has seen the intro and the
// sponsored batch, so every load is a default batch.
func returningSession(ctx context.Context) *Session {
	storage := NewMemoryStorage()
	flags := Flags(storage)
	So(flags.SetFlag(ctx, variant.KeyHasVisited, true), ShouldBeNil)
	So(flags.SetFlag(ctx, variant.KeyHasSeenSponsoredVariant, true), ShouldBeNil)
	return NewSession(storage)
}

func instantAfter(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// batchResponse builds a comparison of pairs executive/technical pairs.
func batchResponse(id string, pairs int) model.ComparisonResponse {
	var ps []model.Profile
	for i := 0; i < pairs; i++ {
		ps = append(ps,
			model.Profile{ID: fmt.Sprintf("%s-ceo-%d", id, i), RoleGroup: model.RoleExecutive},
			model.Profile{ID: fmt.Sprintf("%s-cto-%d", id, i), RoleGroup: model.RoleTechnical},
		)
	}
	return model.ComparisonResponse{
		Person1:  &ps[0],
		Person2:  &ps[1],
		Matchups: ps,
		Variant:  model.VariantDefault,
		BatchID:  id,
	}
}

type scriptedFetcher struct {
	mu    sync.Mutex
	calls []model.ComparisonRequest
	fn    func(ctx context.Context, n int, req model.ComparisonRequest) (model.ComparisonResponse, error)
}

func (f *scriptedFetcher) Comparison(ctx context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	return f.fn(ctx, n, req)
}

func (f *scriptedFetcher) Calls() []model.ComparisonRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ComparisonRequest(nil), f.calls...)
}

// sequentialBatches answers call n with batch-n of five pairs.
func sequentialBatches() *scriptedFetcher {
	return &scriptedFetcher{fn: func(_ context.Context, n int, req model.ComparisonRequest) (model.ComparisonResponse, error) {
		resp := batchResponse(fmt.Sprintf("batch-%d", n), model.BatchPairs)
		if req.Variant != "" {
			resp.Variant = req.Variant
		}
		return resp, nil
	}}
}

type recordingFlusher struct {
	mu   sync.Mutex
	jobs []model.FlushJob
}

func (r *recordingFlusher) Flush(_ context.Context, job model.FlushJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingFlusher) Jobs() []model.FlushJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.FlushJob(nil), r.jobs...)
}

type recordingAnalytics struct {
	mu         sync.Mutex
	views      int
	selections int
	categories []string
	firstVisit int
}

func (a *recordingAnalytics) ComparisonViewed(context.Context, model.Profile, model.Profile, string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.views++
}

func (a *recordingAnalytics) PersonSelected(context.Context, model.Profile, model.Profile, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selections++
}

func (a *recordingAnalytics) CategoryChanged(_ context.Context, category string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.categories = append(a.categories, category)
}

func (a *recordingAnalytics) FirstVisit(context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.firstVisit++
}

func (a *recordingAnalytics) counts() (views, selections, firstVisit int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.views, a.selections, a.firstVisit
}

func technicalSide(v View) Side {
	if v.Left != nil && v.Left.IsTechnical() {
		return Left
	}
	return Right
}

func executiveSide(v View) Side {
	if technicalSide(v) == Left {
		return Right
	}
	return Left
}

func waitCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (a *recordingAnalytics) Categories() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.categories...)
}

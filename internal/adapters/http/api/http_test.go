package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ceoorcto/internal/adapters/http/api"
	service "github.com/okian/ceoorcto/internal/app"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type fakeDeps struct {
	mu sync.Mutex

	comparisonReq model.ComparisonRequest
	comparison    model.ComparisonResponse
	comparisonErr error

	submitted []model.StatsSubmission
	submitRes service.SubmitResult
	submitErr error

	reports []model.AssetReport

	rankingsLimit int
	rankings      model.Rankings
	rankingsErr   error
}

func (f *fakeDeps) Comparison(_ context.Context, req model.ComparisonRequest) (model.ComparisonResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comparisonReq = req
	return f.comparison, f.comparisonErr
}

func (f *fakeDeps) SubmitStats(_ context.Context, sub model.StatsSubmission) (service.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, sub)
	return f.submitRes, f.submitErr
}

func (f *fakeDeps) ReportMissingAsset(_ context.Context, report model.AssetReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, report)
}

func (f *fakeDeps) Rankings(_ context.Context, limit int) (model.Rankings, error) {
	f.rankingsLimit = limit
	return f.rankings, f.rankingsErr
}

func (f *fakeDeps) GetStats() map[string]any {
	return map[string]any{"started": true, "comparisons": 3}
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	opts = append([]api.Option{api.WithLogger(logger.Nop())}, opts...)
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func do(mux http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode(rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	So(json.Unmarshal(rec.Body.Bytes(), &out), ShouldBeNil)
	return out
}

func TestComparisonEndpoint(t *testing.T) {
	Convey("Given the comparison route", t, func() {
		p1 := model.Profile{ID: "a", RoleGroup: model.RoleExecutive}
		p2 := model.Profile{ID: "b", RoleGroup: model.RoleTechnical}
		deps := &fakeDeps{comparison: model.ComparisonResponse{
			Person1: &p1, Person2: &p2,
			Matchups: []model.Profile{p1, p2},
			Variant:  model.VariantDefault,
			BatchID:  "batch-1",
		}}
		mux := newMux(deps)

		Convey("Query flags and the edge country header reach the service", func() {
			rec := do(mux, http.MethodGet, "/api/comparison?firstVisit=true&location=Peru&variant=sponsored", "", "X-Vercel-IP-Country", "pe")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.comparisonReq.FirstVisit, ShouldBeTrue)
			So(deps.comparisonReq.Location, ShouldEqual, "Peru")
			So(deps.comparisonReq.Variant, ShouldEqual, model.VariantSponsored)
			So(deps.comparisonReq.Country, ShouldEqual, "PE")

			body := decode(rec)
			So(body["batchId"], ShouldEqual, "batch-1")
			So(body["person1"].(map[string]any)["id"], ShouldEqual, "a")
		})

		Convey("The Cloudflare header is used when Vercel's is absent", func() {
			do(mux, http.MethodGet, "/api/comparison", "", "CF-IPCountry", "MX")
			So(deps.comparisonReq.Country, ShouldEqual, "MX")
			So(deps.comparisonReq.FirstVisit, ShouldBeFalse)
			So(deps.comparisonReq.Variant, ShouldEqual, model.VariantDefault)
		})

		Convey("Insufficient population maps to 500 with its code", func() {
			deps.comparisonErr = fmt.Errorf("service.Comparison: %w", model.ErrInsufficientPopulation)
			rec := do(mux, http.MethodGet, "/api/comparison", "")
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			body := decode(rec)
			So(body["code"], ShouldEqual, "insufficient_population")
			So(body["details"], ShouldContainSubstring, "not enough people")
		})

		Convey("Production hides error details", func() {
			deps.comparisonErr = errors.New("connection refused")
			rec := do(newMux(deps, api.WithProduction(true)), http.MethodGet, "/api/comparison", "")
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
			body := decode(rec)
			So(body["code"], ShouldEqual, "internal")
			So(body, ShouldNotContainKey, "details")
		})

		Convey("Other methods are rejected", func() {
			rec := do(mux, http.MethodPost, "/api/comparison", "")
			So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestStatsEndpoint(t *testing.T) {
	Convey("Given the stats route", t, func() {
		deps := &fakeDeps{submitRes: service.SubmitResult{Updated: 2}}
		mux := newMux(deps)

		Convey("A batch is submitted and acknowledged", func() {
			body := `{"batchId":"b-1","people":[{"id":"a","roleGroup":"executive","sessionSuccessDelta":0,"sessionTotalDelta":1},{"id":"b","roleGroup":"technical","sessionSuccessDelta":1,"sessionTotalDelta":1}]}`
			rec := do(mux, http.MethodPost, "/api/stats", body)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.submitted, ShouldHaveLength, 1)
			So(deps.submitted[0].BatchID, ShouldEqual, "b-1")
			So(deps.submitted[0].People[1].SessionSuccessDelta, ShouldEqual, 1)

			resp := decode(rec)
			So(resp["success"], ShouldEqual, true)
			So(resp["updated"], ShouldEqual, float64(2))
			So(resp, ShouldNotContainKey, "duplicate")
		})

		Convey("A replayed batch is reported as a duplicate", func() {
			deps.submitRes = service.SubmitResult{Duplicate: true}
			rec := do(mux, http.MethodPost, "/api/stats", `{"batchId":"b-1","people":[]}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			resp := decode(rec)
			So(resp["updated"], ShouldEqual, float64(0))
			So(resp["duplicate"], ShouldEqual, true)
		})

		Convey("Malformed JSON is a 400", func() {
			rec := do(mux, http.MethodPost, "/api/stats", `{"people":`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("A missing people array fails validation", func() {
			rec := do(mux, http.MethodPost, "/api/stats", `{"batchId":"b-2"}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(rec)["code"], ShouldEqual, "bad_request")
		})

		Convey("An invalid submission from the service is a 400", func() {
			deps.submitErr = fmt.Errorf("stats.Validate: %w", model.ErrInvalidSubmission)
			rec := do(mux, http.MethodPost, "/api/stats", `{"people":[{"id":""}]}`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A persistence failure is a 500", func() {
			deps.submitErr = errors.New("store down")
			rec := do(mux, http.MethodPost, "/api/stats", `{"people":[{"id":"a"}]}`)
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestLogEndpoint(t *testing.T) {
	Convey("Given the log route", t, func() {
		deps := &fakeDeps{}
		mux := newMux(deps)

		Convey("Known keys are split from extras", func() {
			rec := do(mux, http.MethodPost, "/api/log", `{"reason":"image-error","timestamp":"2024-01-01T00:00:00Z","person":{"id":"a"},"src":"x.png","attempt":2}`)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["received"], ShouldEqual, true)
			So(deps.reports, ShouldHaveLength, 1)
			r := deps.reports[0]
			So(r.Reason, ShouldEqual, "image-error")
			So(r.Person["id"], ShouldEqual, "a")
			So(r.Extras["src"], ShouldEqual, "x.png")
			So(r.Extras["attempt"], ShouldEqual, float64(2))
		})

		Convey("Invalid JSON is a 400 with the original message", func() {
			rec := do(mux, http.MethodPost, "/api/log", `not json`)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode(rec)["error"], ShouldEqual, "Invalid log payload")
			So(deps.reports, ShouldBeEmpty)
		})

		Convey("Reports beyond the burst are rate limited", func() {
			limited := newMux(deps, api.WithReportLimit(0.001, 1))
			So(do(limited, http.MethodPost, "/api/log", `{}`).Code, ShouldEqual, http.StatusOK)
			So(do(limited, http.MethodPost, "/api/log", `{}`).Code, ShouldEqual, http.StatusTooManyRequests)
		})
	})
}

func TestRankingsAndOps(t *testing.T) {
	Convey("Given the rankings and ops routes", t, func() {
		deps := &fakeDeps{rankings: model.Rankings{
			Top:   []model.RankedProfile{{Rank: 1, Profile: model.Profile{ID: "t"}, Ratio: 0.9}},
			Total: 1,
		}}
		mux := newMux(deps)

		Convey("The limit is passed through", func() {
			rec := do(mux, http.MethodGet, "/api/rankings?limit=3", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(deps.rankingsLimit, ShouldEqual, 3)
			So(decode(rec)["total"], ShouldEqual, float64(1))
		})

		Convey("A missing limit defers to the service default", func() {
			do(mux, http.MethodGet, "/api/rankings", "")
			So(deps.rankingsLimit, ShouldEqual, 0)
		})

		Convey("A bad limit is a 400", func() {
			So(do(mux, http.MethodGet, "/api/rankings?limit=-1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/api/rankings?limit=abc", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An unstarted service is unavailable", func() {
			deps.rankingsErr = fmt.Errorf("service.Rankings: %w", service.ErrNotStarted)
			So(do(mux, http.MethodGet, "/api/rankings", "").Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("Stats and health respond", func() {
			rec := do(mux, http.MethodGet, "/stats", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(decode(rec)["comparisons"], ShouldEqual, float64(3))

			do(mux, http.MethodGet, "/api/rankings", "")
			health := do(mux, http.MethodGet, "/healthz", "")
			So(health.Code, ShouldEqual, http.StatusOK)
			So(health.Body.String(), ShouldContainSubstring, "http_requests_total")
		})
	})
}

func TestAgainstService(t *testing.T) {
	Convey("Given the API over a service seeded with the default population", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		mux := newMux(svc)

		Convey("A first visit returns the intro pair without a batch id", func() {
			rec := do(mux, http.MethodGet, "/api/comparison?firstVisit=true", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var resp model.ComparisonResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.IsFirstVisit, ShouldBeTrue)
			So([]string{resp.Person1.ID, resp.Person2.ID}, ShouldContain, "mati")
			So(resp.BatchID, ShouldBeEmpty)
		})

		Convey("A batch round trips through stats exactly once", func() {
			rec := do(mux, http.MethodGet, "/api/comparison", "")
			So(rec.Code, ShouldEqual, http.StatusOK)
			var resp model.ComparisonResponse
			So(json.Unmarshal(rec.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Matchups, ShouldHaveLength, model.BatchSize)

			resp.Matchups[0].SessionTotalDelta = 1
			resp.Matchups[1].SessionTotalDelta = 1
			if resp.Matchups[0].IsTechnical() {
				resp.Matchups[0].SessionSuccessDelta = 1
			} else {
				resp.Matchups[1].SessionSuccessDelta = 1
			}
			payload, err := json.Marshal(model.StatsSubmission{BatchID: resp.BatchID, People: resp.Matchups})
			So(err, ShouldBeNil)

			first := decode(do(mux, http.MethodPost, "/api/stats", string(payload)))
			So(first["updated"], ShouldEqual, float64(2))

			again := decode(do(mux, http.MethodPost, "/api/stats", string(payload)))
			So(again["duplicate"], ShouldEqual, true)
			So(again["updated"], ShouldEqual, float64(0))
		})
	})
}

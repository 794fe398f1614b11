package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ceoorcto/internal/adapters/http/api"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

func withIntro(profiles []model.Profile) []model.Profile {
	a, b := DefaultIntroPair()
	return append(profiles, a, b)
}

func TestHTTPClient(t *testing.T) {
	Convey("Given the API served over HTTP", t, func() {
		ctx := context.Background()
		svc, store := startService(ctx, withIntro(population(6, "Mexico")))
		defer func() { svc.Stop(); _ = store.Close() }()

		mux := http.NewServeMux()
		api.NewServer(svc, api.WithLogger(logger.Nop())).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		c, err := NewHTTPClient(srv.URL + "/")
		So(err, ShouldBeNil)

		Convey("A comparison comes back as a full batch", func() {
			resp, err := c.Comparison(ctx, model.ComparisonRequest{Location: "Mexico", Variant: model.VariantDefault})
			So(err, ShouldBeNil)
			So(resp.BatchID, ShouldNotBeEmpty)
			So(resp.Batch().Pairs(), ShouldEqual, model.BatchPairs)
			So(resp.Location, ShouldEqual, "Mexico")
		})

		Convey("A first visit gets the intro pair", func() {
			resp, err := c.Comparison(ctx, model.ComparisonRequest{FirstVisit: true})
			So(err, ShouldBeNil)
			So(resp.IsFirstVisit, ShouldBeTrue)
			So(resp.Batch().Pairs(), ShouldEqual, 1)
		})

		Convey("Submitted stats reach the store once", func() {
			resp, err := c.Comparison(ctx, model.ComparisonRequest{})
			So(err, ShouldBeNil)
			b := resp.Batch()
			left, right, _ := b.Pair(0)
			before, err := store.Get(ctx, left.ID)
			So(err, ShouldBeNil)

			left.SessionTotalDelta, right.SessionTotalDelta = 1, 1
			sub := model.StatsSubmission{BatchID: resp.BatchID, People: []model.Profile{left, right}}
			res, err := c.SubmitStats(ctx, sub)
			So(err, ShouldBeNil)
			So(res.Updated, ShouldEqual, 2)
			So(res.Duplicate, ShouldBeFalse)

			after, err := store.Get(ctx, left.ID)
			So(err, ShouldBeNil)
			So(after.TotalCount, ShouldEqual, before.TotalCount+1)

			res, err = c.SubmitStats(ctx, sub)
			So(err, ShouldBeNil)
			So(res.Duplicate, ShouldBeTrue)
		})

		Convey("A profile without an id is rejected", func() {
			_, err := c.SubmitStats(ctx, model.StatsSubmission{People: []model.Profile{{}}})
			So(err, ShouldNotBeNil)
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusBadRequest)
			So(errors.Is(err, model.ErrInvalidSubmission), ShouldBeTrue)
		})

		Convey("Missing image reports are accepted", func() {
			err := c.ReportMissingAsset(ctx, model.AssetReport{
				Reason: "image-error",
				Person: map[string]any{"id": "cto-1"},
				Extras: map[string]any{"stage": "preload"},
			})
			So(err, ShouldBeNil)
			So(svc.GetStats()["assetReports"], ShouldEqual, int64(1))
		})

		Convey("Rankings honour the limit", func() {
			r, err := c.Rankings(ctx, 3)
			So(err, ShouldBeNil)
			So(r.Top, ShouldHaveLength, 3)
			So(r.Bottom, ShouldHaveLength, 3)
			So(r.Top[0].Profile.IsTechnical(), ShouldBeTrue)
		})
	})

	Convey("Given a location with too few profiles", t, func() {
		ctx := context.Background()
		svc, store := startService(ctx, append(population(6, "Mexico"), model.Profile{
			ID: "lone", RoleGroup: model.RoleTechnical, Location: "Chile", TotalCount: 1,
		}))
		defer func() { svc.Stop(); _ = store.Close() }()

		mux := http.NewServeMux()
		api.NewServer(svc, api.WithLogger(logger.Nop())).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()
		c, err := NewHTTPClient(srv.URL)
		So(err, ShouldBeNil)

		Convey("The error code maps back to the domain error", func() {
			_, err := c.Comparison(ctx, model.ComparisonRequest{Location: "Chile"})
			So(errors.Is(err, model.ErrInsufficientPopulation), ShouldBeTrue)
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.Status, ShouldEqual, http.StatusInternalServerError)
			So(apiErr.Code, ShouldEqual, "insufficient_population")
		})
	})

	Convey("Only absolute base URLs are accepted", t, func() {
		_, err := NewHTTPClient("localhost:8080")
		So(err, ShouldNotBeNil)
		_, err = NewHTTPClient("/api")
		So(err, ShouldNotBeNil)
	})

	Convey("The country option sets the edge header", t, func() {
		got := make(chan string, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got <- r.Header.Get("X-Vercel-IP-Country")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"person1":null,"person2":null,"isFirstVisit":false,"variant":"default"}`))
		}))
		defer srv.Close()

		c, err := NewHTTPClient(srv.URL, WithCountry(" pe "))
		So(err, ShouldBeNil)
		_, err = c.Comparison(context.Background(), model.ComparisonRequest{})
		So(err, ShouldBeNil)
		So(<-got, ShouldEqual, "PE")
	})
}

func TestAPIError(t *testing.T) {
	Convey("API errors unwrap to domain errors by code", t, func() {
		So(errors.Is(&APIError{Code: "intro_missing"}, model.ErrIntroProfilesMissing), ShouldBeTrue)
		So(errors.Is(&APIError{Code: "not_found"}, model.ErrNotFound), ShouldBeTrue)
		So((&APIError{Code: "internal"}).Unwrap(), ShouldBeNil)

		msg := (&APIError{Status: 429, Code: "rate_limited", Message: "Too many requests"}).Error()
		So(msg, ShouldEqual, "server returned 429 rate_limited: Too many requests")
	})
}

func TestLocalTransport(t *testing.T) {
	Convey("Given the service in process", t, func() {
		ctx := context.Background()
		svc, store := startService(ctx, population(6, "Mexico"))
		defer func() { svc.Stop(); _ = store.Close() }()
		tr := NewLocalTransport(svc)

		Convey("Comparisons do not share profiles with the server", func() {
			resp, err := tr.Comparison(ctx, model.ComparisonRequest{})
			So(err, ShouldBeNil)
			So(resp.Person1, ShouldNotBeNil)
			id := resp.Matchups[0].ID
			resp.Matchups[0].Name = "changed"
			stored, err := store.Get(ctx, id)
			So(err, ShouldBeNil)
			So(stored.Name, ShouldNotEqual, "changed")
		})

		Convey("Service errors pass through unchanged", func() {
			_, err := tr.Comparison(ctx, model.ComparisonRequest{FirstVisit: true})
			So(errors.Is(err, model.ErrIntroProfilesMissing), ShouldBeTrue)
		})

		Convey("A report on a cancelled context is refused", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := tr.ReportMissingAsset(cctx, model.AssetReport{Reason: "image-error"})
			So(IsCancelled(err), ShouldBeTrue)
			So(svc.GetStats()["assetReports"], ShouldEqual, int64(0))
		})
	})
}

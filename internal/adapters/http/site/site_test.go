package site

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

func init() {
	_ = logger.Init()
}

type stubSource struct {
	rankings model.Rankings
	err      error
	limit    int
}

func (s *stubSource) Rankings(_ context.Context, limit int) (model.Rankings, error) {
	s.limit = limit
	return s.rankings, s.err
}

func serve(src RankingsSource) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	Register(context.Background(), mux, NewHandler(src, 5))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rankings", http.NoBody))
	return rec
}

func TestRankingsPage(t *testing.T) {
	Convey("Given a rankings page", t, func() {
		mati := model.Profile{ID: "mati", Name: "Matias", Role: "CTO", Company: "Maxilar", SuccessCount: 1234, TotalCount: 2000}

		Convey("Both columns are rendered with formatted counters", func() {
			src := &stubSource{rankings: model.Rankings{
				Top:    []model.RankedProfile{{Rank: 1, Profile: mati, Ratio: mati.SuccessRatio()}},
				Bottom: []model.RankedProfile{{Rank: 1, Profile: mati, Ratio: mati.SuccessRatio()}},
				Total:  1,
			}}
			rec := serve(src)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			body := rec.Body.String()
			So(body, ShouldContainSubstring, "The most CTOs")
			So(body, ShouldContainSubstring, "CTO - Maxilar")
			So(body, ShouldContainSubstring, "SR: 1,234")
			So(body, ShouldContainSubstring, "61.7%")
			So(src.limit, ShouldEqual, 5)
		})

		Convey("An empty population shows the empty state", func() {
			rec := serve(&stubSource{})
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, "No CTO data found")
		})

		Convey("A store failure shows the unavailable state", func() {
			rec := serve(&stubSource{err: errors.New("down")})
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(rec.Body.String(), ShouldContainSubstring, "temporarily unavailable")
		})
	})

	Convey("Share links and ratios", t, func() {
		So(FormatRatio(0), ShouldEqual, "0%")
		So(FormatRatio(0.5), ShouldEqual, "50.0%")
		u := ShareURL(model.Profile{ID: "mati", LinkedInProfileURL: "https://linkedin.com/in/mati"}, 2)
		So(u, ShouldStartWith, "https://www.linkedin.com/feed/?shareActive&mini=true&text=")
		So(u, ShouldContainSubstring, "%40mati+you%27re+2th")
	})

	Convey("A nil mux panics", t, func() {
		So(func() { Register(context.Background(), nil, NewHandler(&stubSource{}, 5)) }, ShouldPanic)
	})
}

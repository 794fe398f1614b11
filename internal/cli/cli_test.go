package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/ceoorcto/internal/adapters/http/api"
	service "github.com/okian/ceoorcto/internal/app"
	"github.com/okian/ceoorcto/internal/client"
	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func startServer(ctx context.Context) (*httptest.Server, func()) {
	svc := service.New(service.WithLogger(logger.Nop()))
	So(svc.Start(ctx), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, api.WithLogger(logger.Nop())).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	return srv, func() {
		srv.Close()
		svc.Stop()
	}
}

func execute(ctx context.Context, input string, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	root := NewRootCommand(strings.NewReader(input), &out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestPlayCommand(t *testing.T) {
	Convey("Given a running server", t, func() {
		ctx := context.Background()
		srv, stop := startServer(ctx)
		defer stop()
		state := filepath.Join(t.TempDir(), "state.json")

		Convey("A first visit starts with the intro pair and remembers the visit", func() {
			out, err := execute(ctx, "1\nq\n", "--url", srv.URL, "play", "--dwell", "0", "--preload=false", "--state", state)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Francisco Dominguez")
			So(out, ShouldContainSubstring, "Who is the CTO?")
			So(strings.Contains(out, "Correct,") || strings.Contains(out, "Wrong,"), ShouldBeTrue)
			So(out, ShouldContainSubstring, "Bye.")

			raw, err := os.ReadFile(state)
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, "hasVisited")

			Convey("and the next run goes straight to a full batch", func() {
				out, err := execute(ctx, "q\n", "--url", srv.URL, "play", "--preload=false", "--state", state)
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, "pair 1/5")
			})
		})

		Convey("Unknown input prints the help line", func() {
			out, err := execute(ctx, "maybe\nq\n", "--url", srv.URL, "play", "--preload=false")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "Type 1 or 2 to pick")
		})

		Convey("Running out of input ends the game quietly", func() {
			_, err := execute(ctx, "", "--url", srv.URL, "play", "--preload=false")
			So(err, ShouldBeNil)
		})
	})
}

func TestRankingsCommand(t *testing.T) {
	Convey("Given a running server", t, func() {
		ctx := context.Background()
		srv, stop := startServer(ctx)
		defer stop()

		Convey("Both lists are printed", func() {
			out, err := execute(ctx, "", "--url", srv.URL, "rankings", "--limit", "2")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "The most CTOs")
			So(out, ShouldContainSubstring, "The least CTOs")
			So(out, ShouldContainSubstring, "CTOs ranked")
		})
	})

	Convey("An empty population prints a placeholder", t, func() {
		var out bytes.Buffer
		So(printRankings(&out, model.Rankings{}), ShouldBeNil)
		So(out.String(), ShouldEqual, "No rankings yet.\n")
	})

	Convey("An unreachable server is an error", t, func() {
		_, err := execute(context.Background(), "", "--url", "http://127.0.0.1:1", "rankings")
		So(err, ShouldNotBeNil)
	})
}

func TestSimulateCommand(t *testing.T) {
	Convey("Given a running server", t, func() {
		ctx := context.Background()
		srv, stop := startServer(ctx)
		defer stop()

		out, err := execute(ctx, "", "--url", srv.URL, "simulate", "--players", "2", "--games", "1", "--max-streak", "4")
		So(err, ShouldBeNil)
		So(out, ShouldStartWith, "2 games")
	})
}

func TestSeedCommand(t *testing.T) {
	Convey("The seed command needs a DSN", t, func() {
		_, err := execute(context.Background(), "", "seed")
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "--dsn")
	})
}

func TestImageLoader(t *testing.T) {
	Convey("Relative image paths resolve against the server", t, func() {
		var got string
		next := client.ImageLoaderFunc(func(_ context.Context, u string) error {
			got = u
			return nil
		})
		l := imageLoader("http://example.test/base/", next)
		So(l.Load(context.Background(), "/images/yo.jpg"), ShouldBeNil)
		So(got, ShouldEqual, "http://example.test/images/yo.jpg")
		So(l.Load(context.Background(), "https://cdn.test/a.jpg"), ShouldBeNil)
		So(got, ShouldEqual, "https://cdn.test/a.jpg")
	})
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/ceoorcto/internal/config"
	"github.com/okian/ceoorcto/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestMainConfiguration(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When configuration comes from the environment", func() {
			_ = os.Setenv("CEOORCTO_ADDR", ":8080")
			_ = os.Setenv("CEOORCTO_MIN_POPULATION", "4")
			defer func() {
				_ = os.Unsetenv("CEOORCTO_ADDR")
				_ = os.Unsetenv("CEOORCTO_MIN_POPULATION")
			}()

			convey.Convey("Then it should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.MinPopulation, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When the memory driver is configured", func() {
			store, err := openStore(context.Background(), config.New())

			convey.Convey("Then no external store is opened", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store, convey.ShouldBeNil)
			})
		})
	})
}

func TestMainRoutes(t *testing.T) {
	convey.Convey("Given the wired service and mux", t, func() {
		ctx := context.Background()
		cfg := config.New()
		svc := newService(cfg, nil, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(newMux(ctx, cfg, svc))
		defer srv.Close()

		for _, path := range []string{
			"/healthz",
			"/stats",
			"/api/comparison",
			"/api/comparison?firstVisit=true",
			"/api/rankings",
			"/rankings",
			"/api-docs",
			"/openapi.yaml",
		} {
			convey.Convey("Then GET "+path+" succeeds", func() {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				defer resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		}
	})
}

func TestMainMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the background metric updaters", t, func() {
		convey.Convey("Then a system metrics update does not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the updaters return when the context ends", func() {
			svc := newService(config.New(), nil, logger.Nop())
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				startServiceMetricsUpdater(ctx, svc)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("metrics updaters did not stop")
			}
		})
	})
}

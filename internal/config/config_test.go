package config_test

import (
	"errors"
	"testing"

	"github.com/okian/ceoorcto/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.MinPopulation, convey.ShouldEqual, 2)
			convey.So(cfg.IntroProfileIDs, convey.ShouldResemble, []string{"yo", "mati"})
			convey.So(cfg.EasterProbability, convey.ShouldAlmostEqual, 1.0/3.0)
			convey.So(cfg.IsProduction(), convey.ShouldBeFalse)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break a constraint", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":             func(c *config.Config) { c.Addr = "" },
			"unknown driver":         func(c *config.Config) { c.StoreDriver = "mongo" },
			"postgres without dsn":   func(c *config.Config) { c.StoreDriver = config.DriverPostgres },
			"population below two":   func(c *config.Config) { c.MinPopulation = 1 },
			"single intro profile":   func(c *config.Config) { c.IntroProfileIDs = []string{"yo"} },
			"probability above one":  func(c *config.Config) { c.EasterProbability = 1.5 },
			"zero rankings limit":    func(c *config.Config) { c.MaxRankingsLimit = 0 },
			"zero flush concurrency": func(c *config.Config) { c.FlushConcurrency = 0 },
			"zero report burst":      func(c *config.Config) { c.ReportBurst = 0 },
		}
		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			convey.Convey("Then "+name+" is rejected as invalid", func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})

	convey.Convey("Environment matching is case-insensitive", t, func() {
		cfg := config.New()
		cfg.Environment = "Production"
		convey.So(cfg.IsProduction(), convey.ShouldBeTrue)
	})
}

package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/charsort/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it has sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.ConfidenceBoost, convey.ShouldEqual, 3)
			convey.So(cfg.RandomSeed, convey.ShouldEqual, 0)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "charsort")
			convey.So(cfg.MetricsSubsystem, convey.ShouldEqual, "ranking")
			convey.So(cfg.MetricsBuckets, convey.ShouldBeEmpty)
		})

		convey.Convey("Then the defaults validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given invalid settings", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"zero boost", func(c *config.Config) { c.ConfidenceBoost = 0 }},
			{"zero body limit", func(c *config.Config) { c.MaxBodyBytes = 0 }},
			{"unknown log format", func(c *config.Config) { c.LogFormat = "xml" }},
			{"unknown driver", func(c *config.Config) { c.StoreDriver = "mongo" }},
			{"sqlite without dsn", func(c *config.Config) { c.StoreDriver = config.DriverSQLite }},
			{"postgres without dsn", func(c *config.Config) { c.StoreDriver = config.DriverPostgres }},
			{"empty metrics namespace", func(c *config.Config) { c.MetricsNamespace = "" }},
			{"unordered buckets", func(c *config.Config) { c.MetricsBuckets = []float64{5, 1} }},
		}
		for _, tc := range cases {
			convey.Convey("When the config has "+tc.name, func() {
				cfg := config.New(context.Background())
				tc.mutate(cfg)

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When sqlite is given a path", func() {
			cfg := config.New(context.Background())
			cfg.StoreDriver = config.DriverSQLite
			cfg.StoreDSN = "charsort.db"

			convey.Convey("Then it validates", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}

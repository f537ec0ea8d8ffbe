package config_test

import (
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/fieldrank/fieldrank/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			convey.So(cfg.StoreBackend, convey.ShouldEqual, "mem")
			convey.So(cfg.MongoDatabase, convey.ShouldEqual, "fieldrank")
			convey.So(cfg.SinkBackend, convey.ShouldEqual, "fs")
			convey.So(cfg.BusCapacity, convey.ShouldEqual, 1024)
			convey.So(cfg.MaxRankingsLimit, convey.ShouldEqual, 100)
		})
	})
}

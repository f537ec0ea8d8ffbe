package main

import (
	"context"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/fieldrank/fieldrank/internal/config"
	"github.com/fieldrank/fieldrank/pkg/logger"
)

func TestBuildService(t *testing.T) {
	convey.Convey("Given default configuration with artifacts disabled", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.SinkBackend = "none"

		convey.Convey("When the service is built and started", func() {
			svc, err := buildService(ctx, cfg, logger.Nop())

			convey.Convey("Then it starts and stops cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(svc, convey.ShouldNotBeNil)
				convey.So(svc.Start(ctx), convey.ShouldBeNil)
				convey.So(svc.Stop, convey.ShouldNotPanic)
			})
		})
	})

	convey.Convey("Given a filesystem sink rooted in a temp dir", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.SinkDir = t.TempDir()

		convey.Convey("Then the service builds", func() {
			svc, err := buildService(ctx, cfg, logger.Nop())
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc, convey.ShouldNotBeNil)
		})
	})
}

package logger_test

import (
	"context"
	"testing"

	"github.com/fieldrank/fieldrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given an initialized global logger", t, func() {
		So(logger.Init("text"), ShouldBeNil)

		Convey("Then Get returns a usable logger", func() {
			log := logger.Get()
			So(log, ShouldNotBeNil)
			// Must not panic with arbitrary fields.
			log.Info(context.Background(), "hello",
				logger.String("k", "v"),
				logger.Int("n", 1),
				logger.Err(nil),
			)
		})

		Convey("Then Named and With return derived loggers", func() {
			log := logger.Named("test").With(logger.Bool("flag", true))
			So(log, ShouldNotBeNil)
			log.Debug(context.Background(), "derived")
		})
	})

	Convey("Given level strings", t, func() {
		Convey("Then known levels parse", func() {
			for _, lvl := range []string{"debug", "info", "WARN", "warning", "error", ""} {
				So(logger.SetLevelString(lvl), ShouldBeNil)
			}
		})

		Convey("Then unknown levels fail", func() {
			So(logger.SetLevelString("verbose"), ShouldNotBeNil)
		})
	})

	Convey("Given the nop logger", t, func() {
		log := logger.Nop()

		Convey("Then all levels are safe to call", func() {
			ctx := context.Background()
			log.Debug(ctx, "d")
			log.Info(ctx, "i")
			log.Warn(ctx, "w")
			log.Error(ctx, "e", logger.Any("x", struct{}{}))
			So(log, ShouldNotBeNil)
		})
	})
}

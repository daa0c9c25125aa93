package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	app "github.com/okian/zen/internal/app"
	"github.com/okian/zen/internal/config"
	"github.com/okian/zen/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("ZEN_SERVER__ADDR", ":8080")
			_ = os.Setenv("ZEN_QUEUE__SIZE", "1000")
			_ = os.Setenv("ZEN_WORKERS__COUNT", "4")
			defer func() {
				_ = os.Unsetenv("ZEN_SERVER__ADDR")
				_ = os.Unsetenv("ZEN_QUEUE__SIZE")
				_ = os.Unsetenv("ZEN_WORKERS__COUNT")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Queue.Size, convey.ShouldEqual, 1000)
				convey.So(cfg.Workers.Count, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When testing invalid configuration", func() {
			_ = os.Setenv("ZEN_QUEUE__SIZE", "0")
			defer func() { _ = os.Unsetenv("ZEN_QUEUE__SIZE") }()

			convey.Convey("Then run fails before serving", func() {
				convey.So(run(), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given a started service with registered routes", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cfg := config.New(ctx)
		cfg.Workers.Count = 2
		cfg.Queue.Size = 100
		svc := app.New(cfg)
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := http.NewServeMux()
		convey.So(svc.Register(ctx, mux), convey.ShouldBeNil)

		convey.Convey("Then the probe, stats and docs routes answer", func() {
			for _, path := range []string{"/healthz", "/metrics", "/stats", "/api-docs", "/openapi.yaml"} {
				rec := httptest.NewRecorder()
				mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		convey.Convey("Then the system updater returns when the context ends", func() {
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("Then the service updater tolerates a stopped service", func() {
			convey.So(func() { startServiceMetricsUpdater(ctx, app.New(nil)) }, convey.ShouldNotPanic)
		})
	})
}

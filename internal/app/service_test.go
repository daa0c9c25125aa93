package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	service "github.com/okian/zen/internal/app"
	"github.com/okian/zen/internal/config"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func testConfig() *config.Config {
	cfg := config.New(context.Background())
	cfg.Workers.Count = 2
	cfg.Queue.Size = 100
	cfg.Effects.Workers = 1
	return cfg
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(nil)

		Convey("Then it should not be started", func() {
			So(svc, ShouldNotBeNil)
			So(svc.GetStats(context.Background())["started"], ShouldEqual, false)
			So(svc.Dispatcher(), ShouldBeNil)
			So(svc.Store(), ShouldBeNil)
		})

		Convey("Then intake operations report that it is not started", func() {
			ctx := context.Background()
			_, err := svc.Seen(ctx, "e1")
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			err = svc.Enqueue(ctx, model.Event{ID: "e1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			err = svc.Register(ctx, http.NewServeMux())
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestService_Start(t *testing.T) {
	Convey("Given a service over memory backends", t, func() {
		svc := service.New(testConfig())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("When starting the service", func() {
			err := svc.Start(ctx)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then it should start successfully", func() {
				So(err, ShouldBeNil)
			})

			Convey("And stats should describe the running pipeline", func() {
				stats := svc.GetStats(ctx)
				So(stats["started"], ShouldEqual, true)
				So(stats["workers"], ShouldEqual, 2)
				So(stats["queue_capacity"], ShouldEqual, 100)
				So(stats["queue_length"], ShouldEqual, 0)
				So(stats["backends"], ShouldResemble, map[string]string{
					"store": "memory", "dedupe": "memory", "cooldown": "memory", "policy": "static", "sink": "log",
				})
			})

			Convey("And starting twice is a no-op", func() {
				So(svc.Start(ctx), ShouldBeNil)
			})

			Convey("And routes can be registered", func() {
				So(svc.Register(ctx, http.NewServeMux()), ShouldBeNil)
			})
		})
	})

	Convey("Given an invalid configuration", t, func() {
		cfg := testConfig()
		cfg.Queue.Size = 0
		svc := service.New(cfg)

		Convey("Then Start fails validation", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			So(svc.GetStats(context.Background())["started"], ShouldEqual, false)
		})
	})

	Convey("Given an unreachable redis backend", t, func() {
		cfg := testConfig()
		cfg.Dedupe.Backend = config.BackendRedis
		cfg.Redis.URL = "redis://127.0.0.1:1/0"
		svc := service.New(cfg)

		Convey("Then Start reports the connection failure", func() {
			err := svc.Start(context.Background())
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "connect redis")
		})
	})
}

func TestService_Stop(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New(testConfig())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When stopping the service", func() {
			err := svc.Stop(ctx)

			Convey("Then it should be marked as stopped", func() {
				So(err, ShouldBeNil)
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})

			Convey("And stopping again is a no-op", func() {
				So(svc.Stop(ctx), ShouldBeNil)
			})

			Convey("And it can be started again", func() {
				So(svc.Start(ctx), ShouldBeNil)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_Enqueue(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := service.New(testConfig())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When enqueueing a valid event", func() {
			err := svc.Enqueue(ctx, model.Event{
				ID: "event-123", Kind: model.KindMessageCreate,
				ServerID: "s1", ChannelID: "c1", AuthorID: "alice", Content: "hello",
				At: time.Now(),
			})

			Convey("Then it is accepted and eventually marked processed", func() {
				So(err, ShouldBeNil)
				So(eventually(func() bool {
					seen, _ := svc.Seen(ctx, "event-123")
					return seen
				}), ShouldBeTrue)
			})
		})
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

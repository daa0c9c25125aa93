package policy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type countingSource struct {
	calls atomic.Int64
	fail  atomic.Bool
	delay time.Duration
}

func (s *countingSource) Policy(_ context.Context, serverID string) (*model.Policy, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return model.DefaultPolicy(serverID), nil
}

func TestStatic(t *testing.T) {
	Convey("Given a static source with one override", t, func() {
		tmpl := model.DefaultPolicy("")
		tmpl.Features[model.FeatureReputation] = true
		override := model.DefaultPolicy("g1")
		override.Features[model.FeatureHashtag] = true
		s := NewStatic(tmpl, map[string]*model.Policy{"g1": override})
		ctx := context.Background()

		Convey("When the overridden server is looked up", func() {
			p, err := s.Policy(ctx, "g1")

			Convey("Then the override is returned", func() {
				So(err, ShouldBeNil)
				So(p.ServerID, ShouldEqual, "g1")
				So(p.Enabled(model.FeatureHashtag), ShouldBeTrue)
				So(p.Enabled(model.FeatureReputation), ShouldBeFalse)
			})
		})

		Convey("When another server is looked up", func() {
			p, err := s.Policy(ctx, "g2")

			Convey("Then a copy of the template carries its id", func() {
				So(err, ShouldBeNil)
				So(p.ServerID, ShouldEqual, "g2")
				So(p.Enabled(model.FeatureReputation), ShouldBeTrue)
				p.Features[model.FeatureReputation] = false
				again, _ := s.Policy(ctx, "g2")
				So(again.Enabled(model.FeatureReputation), ShouldBeTrue)
			})
		})

		Convey("When the override is mutated after construction", func() {
			override.Features[model.FeatureHashtag] = false
			p, _ := s.Policy(ctx, "g1")

			Convey("Then the source is unaffected", func() {
				So(p.Enabled(model.FeatureHashtag), ShouldBeTrue)
			})
		})
	})
}

func TestCached(t *testing.T) {
	Convey("Given a cache in front of a counting source", t, func() {
		src := &countingSource{}
		c := NewCached(src, 8, time.Minute, WithName("test"), WithLogger(logger.Nop()))
		ctx := context.Background()

		Convey("When the same server is looked up twice", func() {
			_, err := c.Policy(ctx, "g1")
			So(err, ShouldBeNil)
			p, err := c.Policy(ctx, "g1")

			Convey("Then the source is asked once", func() {
				So(err, ShouldBeNil)
				So(p.ServerID, ShouldEqual, "g1")
				So(src.calls.Load(), ShouldEqual, 1)
				So(c.Len(), ShouldEqual, 1)
			})

			Convey("Then invalidation forces a reload", func() {
				c.Invalidate("g1")
				_, _ = c.Policy(ctx, "g1")
				So(src.calls.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the source fails", func() {
			src.fail.Store(true)
			p, err := c.Policy(ctx, "g1")

			Convey("Then the error is wrapped and nothing is cached", func() {
				So(p, ShouldBeNil)
				So(errors.Is(err, ErrUnavailable), ShouldBeTrue)
				So(c.Len(), ShouldEqual, 0)
			})

			Convey("Then a later success is served", func() {
				src.fail.Store(false)
				p, err := c.Policy(ctx, "g1")
				So(err, ShouldBeNil)
				So(p, ShouldNotBeNil)
			})
		})

		Convey("When concurrent misses hit one server", func() {
			src.delay = 50 * time.Millisecond
			var wg sync.WaitGroup
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, _ = c.Policy(ctx, "g1")
				}()
			}
			wg.Wait()

			Convey("Then they share one lookup", func() {
				So(src.calls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a cache with a short ttl", t, func() {
		src := &countingSource{}
		c := NewCached(src, 8, 20*time.Millisecond)

		Convey("When the entry expires", func() {
			_, _ = c.Policy(context.Background(), "g1")
			time.Sleep(60 * time.Millisecond)
			_, _ = c.Policy(context.Background(), "g1")

			Convey("Then the source is asked again", func() {
				So(src.calls.Load(), ShouldEqual, 2)
			})
		})
	})
}

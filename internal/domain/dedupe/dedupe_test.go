package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dedupe "github.com/okian/zen/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		Convey("Then it starts empty", func() {
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When an event is recorded", func() {
			seen, err := d.SeenAndRecord(ctx, "event-1")

			Convey("Then it is new", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And it is recorded again", func() {
				seen, err = d.SeenAndRecord(ctx, "event-1")

				Convey("Then it is reported as seen", func() {
					So(err, ShouldBeNil)
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And it is unrecorded", func() {
				So(d.Unrecord(ctx, "event-1"), ShouldBeNil)

				Convey("Then a redelivery is new again", func() {
					seen, _ = d.SeenAndRecord(ctx, "event-1")
					So(seen, ShouldBeFalse)
				})
			})
		})

		Convey("When only peeking at an id", func() {
			seen, err := d.Seen(ctx, "event-2")

			Convey("Then nothing is recorded", func() {
				So(err, ShouldBeNil)
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 0)
				_, _ = d.SeenAndRecord(ctx, "event-2")
				seen, _ = d.Seen(ctx, "event-2")
				So(seen, ShouldBeTrue)
			})
		})

		Convey("When unrecording an unknown id", func() {
			So(d.Unrecord(ctx, "missing"), ShouldBeNil)
			So(d.Size(), ShouldEqual, 0)
		})
	})
}

func TestDeduperBounds(t *testing.T) {
	Convey("Given a deduper bounded to three entries", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3), dedupe.WithRetention(0))

		for i := 1; i <= 4; i++ {
			_, _ = d.SeenAndRecord(ctx, fmt.Sprintf("e%d", i))
		}

		Convey("Then the oldest entry was evicted", func() {
			So(d.Size(), ShouldEqual, 3)
			seen, _ := d.SeenAndRecord(ctx, "e4")
			So(seen, ShouldBeTrue)
			seen, _ = d.SeenAndRecord(ctx, "e1")
			So(seen, ShouldBeFalse)
		})

		Convey("When a middle entry is unrecorded", func() {
			So(d.Unrecord(ctx, "e3"), ShouldBeNil)

			Convey("Then the list stays consistent", func() {
				So(d.Size(), ShouldEqual, 2)
				_, _ = d.SeenAndRecord(ctx, "e5")
				_, _ = d.SeenAndRecord(ctx, "e6")
				So(d.Size(), ShouldEqual, 3)
				seen, _ := d.SeenAndRecord(ctx, "e6")
				So(seen, ShouldBeTrue)
			})
		})
	})
}

func TestDeduperRetention(t *testing.T) {
	Convey("Given a deduper with a one minute retention window", t, func() {
		ctx := context.Background()
		now := time.Unix(1_700_000_000, 0)
		d := dedupe.NewInMemoryDeduper(
			dedupe.WithRetention(time.Minute),
			dedupe.WithClock(func() time.Time { return now }),
		)
		_, _ = d.SeenAndRecord(ctx, "e1")

		Convey("When a redelivery arrives inside the window", func() {
			now = now.Add(30 * time.Second)
			seen, _ := d.SeenAndRecord(ctx, "e1")
			So(seen, ShouldBeTrue)
		})

		Convey("When a redelivery arrives after the window", func() {
			now = now.Add(2 * time.Minute)
			seen, _ := d.SeenAndRecord(ctx, "e1")

			Convey("Then suppression is no longer guaranteed", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})
		})
	})
}

func TestDeduperConcurrency(t *testing.T) {
	Convey("Given concurrent redeliveries of the same id", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()
		var fresh atomic.Int64
		var wg sync.WaitGroup

		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if seen, _ := d.SeenAndRecord(ctx, "same"); !seen {
					fresh.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one caller records it", func() {
			So(fresh.Load(), ShouldEqual, 1)
		})
	})
}

package feedsim

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/zen/internal/app"
	"github.com/okian/zen/internal/config"
	"github.com/okian/zen/internal/domain/model"
	"github.com/okian/zen/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func simConfig() *Config {
	return &Config{
		BaseURL:       "http://localhost:9080",
		Servers:       2,
		Members:       10,
		NumEvents:     500,
		Workers:       4,
		Timeout:       5 * time.Second,
		Settle:        5 * time.Second,
		Seed:          7,
		DuplicateRate: 0.1,
		BotRate:       0.05,
		TopN:          10,
	}
}

func TestConfigValidate(t *testing.T) {
	Convey("Given simulator configs", t, func() {
		Convey("A complete config is valid", func() {
			So(simConfig().Validate(), ShouldBeNil)
		})

		Convey("Broken configs are rejected", func() {
			for _, mutate := range []func(*Config){
				func(c *Config) { c.BaseURL = "" },
				func(c *Config) { c.Servers = 0 },
				func(c *Config) { c.Members = 1 },
				func(c *Config) { c.NumEvents = 0 },
				func(c *Config) { c.Workers = 0 },
				func(c *Config) { c.DuplicateRate = 1 },
				func(c *Config) { c.BotRate = -0.1 },
			} {
				cfg := simConfig()
				mutate(cfg)
				So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
			}
		})
	})
}

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		cfg := simConfig()
		events := NewGenerator(cfg).Generate(cfg.NumEvents)

		Convey("Then every event is valid", func() {
			for i := range events {
				So(events[i].Validate(), ShouldBeNil)
			}
		})

		Convey("Then the stream covers every kind and includes redeliveries", func() {
			kinds := map[model.EventKind]int{}
			ids := map[string]int{}
			for _, ev := range events {
				kinds[ev.Kind]++
				ids[ev.ID]++
			}
			So(kinds[model.KindMessageCreate], ShouldBeGreaterThan, 0)
			So(kinds[model.KindReactionAdd], ShouldBeGreaterThan, 0)
			So(kinds[model.KindMessageEdit], ShouldBeGreaterThan, 0)
			So(kinds[model.KindMessageDelete], ShouldBeGreaterThan, 0)
			So(len(ids), ShouldBeLessThan, len(events))
		})

		Convey("Then reactions and replies never target their own actor", func() {
			for _, ev := range events {
				if ev.Kind == model.KindReactionAdd {
					So(ev.AuthorID, ShouldNotEqual, ev.ReactorID)
				}
				if ev.ReferencedAuthorID != "" {
					So(ev.ReferencedAuthorID, ShouldNotEqual, ev.AuthorID)
				}
			}
		})

		Convey("Then the same seed reproduces the same content", func() {
			again := NewGenerator(cfg).Generate(cfg.NumEvents)
			for i := range events {
				So(again[i].Kind, ShouldEqual, events[i].Kind)
				So(again[i].Content, ShouldEqual, events[i].Content)
				So(again[i].AuthorID, ShouldEqual, events[i].AuthorID)
			}
		})
	})
}

func TestVerifyLeaderboard(t *testing.T) {
	Convey("Given leaderboards", t, func() {
		Convey("A dense ranking passes", func() {
			So(VerifyLeaderboard(&Leaderboard{Entries: []model.LeaderboardEntry{
				{Rank: 1, UserID: "a", Value: 5},
				{Rank: 1, UserID: "b", Value: 5},
				{Rank: 2, UserID: "c", Value: 3},
			}}), ShouldBeNil)
		})

		Convey("An empty board passes", func() {
			So(VerifyLeaderboard(&Leaderboard{}), ShouldBeNil)
		})

		Convey("Gapped, unordered or split ties fail", func() {
			for _, entries := range [][]model.LeaderboardEntry{
				{{Rank: 2, UserID: "a", Value: 5}},
				{{Rank: 1, UserID: "a", Value: 5}, {Rank: 3, UserID: "b", Value: 3}},
				{{Rank: 1, UserID: "a", Value: 3}, {Rank: 2, UserID: "b", Value: 5}},
				{{Rank: 1, UserID: "a", Value: 5}, {Rank: 2, UserID: "b", Value: 5}},
			} {
				err := VerifyLeaderboard(&Leaderboard{Entries: entries})
				So(errors.Is(err, ErrInconsistent), ShouldBeTrue)
			}
		})
	})
}

func TestClientSubmit(t *testing.T) {
	Convey("Given a service that throttles before accepting", t, func() {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		Convey("Then Submit retries until accepted", func() {
			c := NewClient(srv.URL, time.Second, 5, time.Millisecond)
			res, err := c.Submit(context.Background(), &model.Event{ID: "e1"})
			So(err, ShouldBeNil)
			So(res, ShouldEqual, ResultAccepted)
			So(calls.Load(), ShouldEqual, 3)
		})

		Convey("Then a small retry budget reports throttling", func() {
			c := NewClient(srv.URL, time.Second, 1, time.Millisecond)
			res, err := c.Submit(context.Background(), &model.Event{ID: "e1"})
			So(err, ShouldNotBeNil)
			So(res, ShouldEqual, ResultThrottled)
		})
	})

	Convey("Given a service answering duplicates and errors", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ev model.Event
			_ = json.NewDecoder(r.Body).Decode(&ev)
			if ev.ID == "dup" {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status":"duplicate","duplicate":true}`))
				return
			}
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()
		c := NewClient(srv.URL, time.Second, 3, time.Millisecond)

		Convey("Then duplicates are classified", func() {
			res, err := c.Submit(context.Background(), &model.Event{ID: "dup"})
			So(err, ShouldBeNil)
			So(res, ShouldEqual, ResultDuplicate)
		})

		Convey("Then server errors fail without retry", func() {
			res, err := c.Submit(context.Background(), &model.Event{ID: "x"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "status 500")
			So(res, ShouldEqual, ResultFailed)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service with every feature enabled", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		scfg := config.New(ctx)
		scfg.Workers.Count = 4
		scfg.Queue.Size = 10_000
		scfg.Policy.Defaults.Features = map[string]bool{"rep": true, "xp": true, "hashtag": true}
		scfg.Policy.Defaults.ModeratedChannels = []string{ModeratedChannel}
		svc := service.New(scfg)
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := http.NewServeMux()
		So(svc.Register(ctx, mux), ShouldBeNil)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("When the simulator runs against it", func() {
			cfg := simConfig()
			cfg.BaseURL = srv.URL
			cfg.OutputFile = filepath.Join(t.TempDir(), "events.json")
			err := Run(ctx, cfg)

			Convey("Then the leaderboards verify and reputation was granted", func() {
				So(err, ShouldBeNil)
				c := NewClient(srv.URL, time.Second, 0, 0)
				total := 0
				for _, server := range []string{"server-1", "server-2"} {
					b, err := c.Leaderboard(ctx, server, "rep", 10)
					So(err, ShouldBeNil)
					total += len(b.Entries)
				}
				So(total, ShouldBeGreaterThan, 0)
				So(cfg.OutputFile, ShouldNotBeEmpty)
			})
		})
	})
}

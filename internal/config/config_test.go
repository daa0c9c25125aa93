package config_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/zen/internal/config"
	"github.com/okian/zen/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Server.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Queue.Size, convey.ShouldEqual, 100_000)
			convey.So(cfg.Workers.Count, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.Workers.Retries, convey.ShouldEqual, 3)
			convey.So(cfg.Workers.RetryBackoff, convey.ShouldEqual, 50*time.Millisecond)
			convey.So(cfg.Dedupe.Size, convey.ShouldEqual, 500_000)
			convey.So(cfg.Dedupe.Retention, convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.Dedupe.Backend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.Store.Backend, convey.ShouldEqual, config.BackendMemory)
			convey.So(cfg.Policy.Source, convey.ShouldEqual, config.BackendStatic)
			convey.So(cfg.Sink.Backend, convey.ShouldEqual, config.BackendLog)
			convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "zen")
			convey.So(cfg.Metrics.Subsystem, convey.ShouldEqual, "pipeline")
		})

		convey.Convey("Then it should validate", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.UsesPostgres(), convey.ShouldBeFalse)
			convey.So(cfg.UsesRedis(), convey.ShouldBeFalse)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("When an unknown backend is selected", func() {
			cfg.Store.Backend = "mongo"
			err := cfg.Validate()

			convey.Convey("Then the field is named in the error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "store.backend")
			})
		})

		convey.Convey("When metric buckets are not increasing", func() {
			cfg.Metrics.Buckets = []float64{1, 5, 5}
			err := cfg.Validate()

			convey.Convey("Then validation fails on metrics.buckets", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "metrics.buckets")
			})
		})

		convey.Convey("When the metrics namespace is empty", func() {
			cfg.Metrics.Namespace = ""
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When postgres is selected without a dsn", func() {
			cfg.Store.Backend = config.BackendPostgres
			err := cfg.Validate()

			convey.Convey("Then validation fails on postgres.dsn", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "postgres.dsn")
			})
		})

		convey.Convey("When redis is selected for dedupe", func() {
			cfg.Dedupe.Backend = config.BackendRedis

			convey.Convey("Then the default url satisfies it", func() {
				convey.So(cfg.UsesRedis(), convey.ShouldBeTrue)
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the worker count is zero", func() {
			cfg.Workers.Count = 0

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a server override names an unknown feature", func() {
			cfg.Policy.Servers["g1"] = config.PolicySettings{Features: map[string]bool{"karma": true}}
			err := cfg.Validate()

			convey.Convey("Then the server is named in the error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "policy.servers.g1")
			})
		})

		convey.Convey("When the default level curve is flat", func() {
			cfg.Policy.Defaults.Levels = &model.LevelCurve{}

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), model.ErrInvalidPolicy), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPolicyConfig(t *testing.T) {
	convey.Convey("Given policy defaults and one server override", t, func() {
		cfg := config.New(context.Background())
		cfg.Policy.Defaults.Features = map[string]bool{"rep": true, "xp": true}
		cfg.Policy.Defaults.TriggerWords = []string{"thanks"}
		zero := time.Duration(0)
		cfg.Policy.Servers["g1"] = config.PolicySettings{
			Features:          map[string]bool{"xp": false, "hashtag": true},
			ModeratedChannels: []string{"questions"},
			RepCooldown:       &zero,
			Rewards:           []model.Reward{{Ledger: model.LedgerExperience, Threshold: 5, RewardID: "regular"}},
		}

		convey.Convey("When the template is built", func() {
			p, err := cfg.Policy.Template()

			convey.Convey("Then defaults overlay the baseline policy", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.Enabled(model.FeatureReputation), convey.ShouldBeTrue)
				convey.So(p.TriggerWords, convey.ShouldResemble, []string{"thanks"})
				convey.So(p.RepCooldown, convey.ShouldEqual, model.DefaultRepCooldown)
				convey.So(p.Levels, convey.ShouldResemble, model.LevelCurve{Base: 400, Step: 200})
			})
		})

		convey.Convey("When overrides are resolved", func() {
			all, err := cfg.Policy.Overrides()
			convey.So(err, convey.ShouldBeNil)
			p := all["g1"]

			convey.Convey("Then features merge key by key", func() {
				convey.So(p.ServerID, convey.ShouldEqual, "g1")
				convey.So(p.Enabled(model.FeatureReputation), convey.ShouldBeTrue)
				convey.So(p.Enabled(model.FeatureExperience), convey.ShouldBeFalse)
				convey.So(p.Enabled(model.FeatureHashtag), convey.ShouldBeTrue)
			})

			convey.Convey("Then unset fields inherit and set fields replace", func() {
				convey.So(p.TriggerWords, convey.ShouldResemble, []string{"thanks"})
				convey.So(p.RequiresHashtag("questions"), convey.ShouldBeTrue)
				convey.So(p.RepCooldown, convey.ShouldEqual, 0)
				convey.So(p.XPCooldown, convey.ShouldEqual, model.DefaultXPCooldown)
				convey.So(len(p.Rewards), convey.ShouldEqual, 1)
			})
		})
	})
}

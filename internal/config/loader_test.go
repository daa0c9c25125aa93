package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/zen/internal/config"
	"github.com/okian/zen/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Queue.Size, convey.ShouldEqual, 100_000)
				convey.So(cfg.Effects.Workers, convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("ZEN_SERVER__ADDR", ":8080")
			_ = os.Setenv("ZEN_QUEUE__SIZE", "5000")
			_ = os.Setenv("ZEN_WORKERS__COUNT", "16")
			_ = os.Setenv("ZEN_DEDUPE__RETENTION", "2h")
			_ = os.Setenv("ZEN_POLICY__DEFAULTS__FEATURES__REP", "true")
			_ = os.Setenv("ZEN_METRICS__NAMESPACE", "zenbot")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "zenbot")
				convey.So(cfg.Metrics.Subsystem, convey.ShouldEqual, "pipeline")
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.Queue.Size, convey.ShouldEqual, 5000)
				convey.So(cfg.Workers.Count, convey.ShouldEqual, 16)
				convey.So(cfg.Dedupe.Retention, convey.ShouldEqual, 2*time.Hour)
				convey.So(cfg.Policy.Defaults.Features["rep"], convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			yamlContent := `
server:
  addr: ":9090"
queue:
  size: 300000
policy:
  defaults:
    features:
      rep: true
    xp:
      base: 20
  servers:
    g1:
      features:
        hashtag: true
      moderated_channels: ["questions"]
      rep_cooldown: 30s
      rewards:
        - ledger: rep
          threshold: 10
          reward_id: helper
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ZEN_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from the YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Queue.Size, convey.ShouldEqual, 300000)
				convey.So(cfg.Server.ReadTimeout, convey.ShouldEqual, 5*time.Second)
			})

			convey.Convey("Then partial nested values keep their defaults", func() {
				convey.So(cfg.Policy.Defaults.XP.Base, convey.ShouldEqual, 20)
				convey.So(cfg.Policy.Defaults.XP.MaxBonus, convey.ShouldEqual, 10)
			})

			convey.Convey("Then server overrides resolve", func() {
				all, err := cfg.Policy.Overrides()
				convey.So(err, convey.ShouldBeNil)
				p := all["g1"]
				convey.So(p.Enabled(model.FeatureReputation), convey.ShouldBeTrue)
				convey.So(p.Enabled(model.FeatureHashtag), convey.ShouldBeTrue)
				convey.So(p.RequiresHashtag("questions"), convey.ShouldBeTrue)
				convey.So(p.RepCooldown, convey.ShouldEqual, 30*time.Second)
				convey.So(p.Rewards, convey.ShouldResemble, []model.Reward{{Ledger: model.LedgerReputation, Threshold: 10, RewardID: "helper"}})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
server:
  addr: ":9090"
workers:
  count: 24
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ZEN_CONFIG", tmpFile)
			_ = os.Setenv("ZEN_WORKERS__COUNT", "32")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Server.Addr, convey.ShouldEqual, ":9090") // From file
				convey.So(cfg.Workers.Count, convey.ShouldEqual, 32)    // Overridden by env
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ZEN_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("ZEN_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("ZEN_SERVER__ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "server.addr")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("ZEN_QUEUE__SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with negative queue size", func() {
			_ = os.Setenv("ZEN_QUEUE__SIZE", "-100")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then validation rejects it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the redis sink is selected without a url", func() {
			_ = os.Setenv("ZEN_SINK__BACKEND", "redis")
			_ = os.Setenv("ZEN_REDIS__URL", "")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation names redis.url", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "redis.url")
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"ZEN_CONFIG",
		"ZEN_SERVER__ADDR",
		"ZEN_QUEUE__SIZE",
		"ZEN_WORKERS__COUNT",
		"ZEN_DEDUPE__RETENTION",
		"ZEN_POLICY__DEFAULTS__FEATURES__REP",
		"ZEN_SINK__BACKEND",
		"ZEN_REDIS__URL",
		"ZEN_METRICS__NAMESPACE",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "zen-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}

package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/tally/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "file")
				convey.So(cfg.TimezoneOffsetMinutes, convey.ShouldEqual, 540)
				convey.So(cfg.ReconcileOnStart, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("TALLY_ADDR", ":8080")
			t.Setenv("TALLY_STORE_DRIVER", "sqlite")
			t.Setenv("TALLY_SQLITE_PATH", "/var/lib/tally.db")
			t.Setenv("TALLY_TIMEZONE_OFFSET_MINUTES", "-300")
			t.Setenv("TALLY_RANKING_LIMIT", "5")
			t.Setenv("TALLY_RECONCILE_ON_START", "true")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/var/lib/tally.db")
				convey.So(cfg.TimezoneOffsetMinutes, convey.ShouldEqual, -300)
				convey.So(cfg.RankingLimit, convey.ShouldEqual, 5)
				convey.So(cfg.ReconcileOnStart, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
data_dir: "/srv/tally"
dedupe_size: 500
log_format: json
metrics_namespace: bot
metrics_buckets_ms: [1, 5, 25]
`)
			t.Setenv("TALLY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file and keep other defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DataDir, convey.ShouldEqual, "/srv/tally")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 500)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.RankingLimit, convey.ShouldEqual, 10)
				convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "bot")
				convey.So(cfg.MetricsSubsystem, convey.ShouldEqual, "counter")
				convey.So(cfg.MetricsBucketsMS, convey.ShouldResemble, []float64{1, 5, 25})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(t, `
addr: ":9090"
dedupe_size: 500
`)
			t.Setenv("TALLY_CONFIG", tmpFile)
			t.Setenv("TALLY_ADDR", ":8080")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			t.Setenv("TALLY_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			t.Setenv("TALLY_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			t.Setenv("TALLY_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("TALLY_RANKING_LIMIT", "many")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the ranking limit exceeds the chart capacity", func() {
			t.Setenv("TALLY_RANKING_LIMIT", "25")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then validation should reject it", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, name := range []string{
		"TALLY_CONFIG", "TALLY_ADDR", "TALLY_STORE_DRIVER", "TALLY_SQLITE_PATH",
		"TALLY_DATA_DIR", "TALLY_TIMEZONE_OFFSET_MINUTES", "TALLY_RANKING_LIMIT",
		"TALLY_RECONCILE_ON_START", "TALLY_DEDUPE_SIZE", "TALLY_LOG_FORMAT",
	} {
		_ = os.Unsetenv(name)
	}
}

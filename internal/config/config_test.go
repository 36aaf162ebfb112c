package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/sightline/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.UploadAllowedTypes, convey.ShouldResemble, []string{"image/png", "image/jpeg", "image/gif"})
			convey.So(cfg.UploadDuplicatePolicy, convey.ShouldEqual, config.DuplicateOverwrite)
			convey.So(cfg.SessionAllowAnonymous, convey.ShouldBeFalse)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("And duration helpers should convert milliseconds", func() {
			convey.So(cfg.StoreTimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.PublishTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.SessionWriteTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.SessionPingInterval(), convey.ShouldEqual, 30*time.Second)
			lo, hi := cfg.PredictionLatency()
			convey.So(lo, convey.ShouldEqual, 200*time.Millisecond)
			convey.So(hi, convey.ShouldEqual, 800*time.Millisecond)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break one constraint each", t, func() {
		cases := map[string]func(c *config.Config){
			"unknown blob backend":   func(c *config.Config) { c.BlobBackend = "gcs" },
			"s3 without bucket":      func(c *config.Config) { c.BlobBackend = config.BackendS3; c.BlobBucket = "" },
			"unknown queue backend":  func(c *config.Config) { c.QueueBackend = "kafka" },
			"nats without url":       func(c *config.Config) { c.QueueBackend = config.BackendNATS },
			"bad duplicate policy":   func(c *config.Config) { c.UploadDuplicatePolicy = "version" },
			"zero max files":         func(c *config.Config) { c.UploadMaxFiles = 0 },
			"zero max bytes":         func(c *config.Config) { c.UploadMaxFileBytes = 0 },
			"empty topic":            func(c *config.Config) { c.QueueTopic = " " },
			"inverted latency range": func(c *config.Config) { c.PredictionLatencyMinMS = 900 },
			"zero store timeout":     func(c *config.Config) { c.StoreTimeoutMS = 0 },
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)

			convey.Convey("Then validation should fail for "+name, func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

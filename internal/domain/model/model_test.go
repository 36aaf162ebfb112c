package model_test

import (
	"errors"
	"strings"
	"testing"

	model "github.com/okian/sightline/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestSessionID(t *testing.T) {
	convey.Convey("Given session ids", t, func() {
		convey.Convey("When the id is a client uuid", func() {
			err := model.SessionID("7d3c1c1e-8a7b-4d6e-9f2a-1b2c3d4e5f60").Validate()

			convey.Convey("Then it should be accepted", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the id is empty or blank", func() {
			convey.Convey("Then it should be a validation error", func() {
				convey.So(errors.Is(model.SessionID("").Validate(), model.ErrValidation), convey.ShouldBeTrue)
				convey.So(errors.Is(model.SessionID("   ").Validate(), model.ErrValidation), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the id carries path separators or control characters", func() {
			convey.Convey("Then it should be rejected", func() {
				convey.So(model.SessionID("a/b").Validate(), convey.ShouldNotBeNil)
				convey.So(model.SessionID(`a\b`).Validate(), convey.ShouldNotBeNil)
				convey.So(model.SessionID("a\nb").Validate(), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the id is oversized", func() {
			convey.So(model.SessionID(strings.Repeat("x", 129)).Validate(), convey.ShouldNotBeNil)
		})
	})
}

func TestArtifactKey(t *testing.T) {
	convey.Convey("Given a session and a file name", t, func() {
		convey.Convey("Then the key should be {sid}-{name}", func() {
			convey.So(model.ArtifactKey("abc123", "photo.png"), convey.ShouldEqual, "abc123-photo.png")
		})

		convey.Convey("And it should be deterministic", func() {
			convey.So(model.ArtifactKey("abc123", "photo.png"), convey.ShouldEqual, model.ArtifactKey("abc123", "photo.png"))
		})

		convey.Convey("And client directories should be dropped", func() {
			convey.So(model.ArtifactKey("abc123", "C:\\Users\\me\\photo.png"), convey.ShouldEqual, "abc123-photo.png")
			convey.So(model.ArtifactKey("abc123", "../../etc/photo.png"), convey.ShouldEqual, "abc123-photo.png")
		})
	})
}

func TestJob(t *testing.T) {
	convey.Convey("Given a job for a stored artifact", t, func() {
		job := model.NewJob("abc123", "abc123-photo.png")

		convey.Convey("Then it should carry a unique id", func() {
			convey.So(len(job.ID), convey.ShouldEqual, 36)
			convey.So(model.NewJob("abc123", "abc123-photo.png").ID, convey.ShouldNotEqual, job.ID)
		})

		convey.Convey("When encoding it", func() {
			payload, err := job.Encode()

			convey.Convey("Then it should match the worker payload exactly", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(payload), convey.ShouldEqual, `{"uid":"abc123","image_name":"abc123-photo.png"}`)
			})

			convey.Convey("And it should decode back", func() {
				decoded, err := model.DecodeJob(payload)
				convey.So(err, convey.ShouldBeNil)
				convey.So(decoded.UID, convey.ShouldEqual, job.UID)
				convey.So(decoded.ImageName, convey.ShouldEqual, job.ImageName)
				convey.So(decoded.ID, convey.ShouldBeEmpty)
				convey.So(decoded.Session(), convey.ShouldEqual, model.SessionID("abc123"))
			})
		})

		convey.Convey("When decoding an incomplete payload", func() {
			_, err := model.DecodeJob([]byte(`{"uid":"abc123"}`))

			convey.Convey("Then it should fail validation", func() {
				convey.So(errors.Is(err, model.ErrValidation), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When decoding garbage", func() {
			_, err := model.DecodeJob([]byte(`{uid:abc123}`))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestEventEncoding(t *testing.T) {
	convey.Convey("Given a result event", t, func() {
		ev := model.NewResultEvent("abc123-photo.png", "positive", "0.87")

		convey.Convey("Then it should encode to the client envelope", func() {
			payload, err := ev.Encode()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(payload), convey.ShouldEqual,
				`{"topic":"result","data":{"image_name":"abc123-photo.png","prediction":"positive","confidence":"0.87"}}`)

			decoded, err := model.DecodeEvent(payload)
			convey.So(err, convey.ShouldBeNil)
			convey.So(decoded.Result, convey.ShouldResemble, ev.Result)
		})
	})

	convey.Convey("Given a message event", t, func() {
		ev := model.NewMessageEvent("Starting analysis of image: abc123-photo.png")

		convey.Convey("Then the text should travel under data.message", func() {
			payload, err := ev.Encode()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(payload), convey.ShouldEqual,
				`{"topic":"message","data":{"message":"Starting analysis of image: abc123-photo.png"}}`)
		})
	})

	convey.Convey("Given malformed events", t, func() {
		convey.Convey("Then encoding should fail instead of sending half an envelope", func() {
			_, err := model.Event{Topic: model.TopicResult}.Encode()
			convey.So(err, convey.ShouldNotBeNil)
			_, err = model.Event{Topic: "progress", Message: &model.Message{Text: "x"}}.Encode()
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestFileError(t *testing.T) {
	convey.Convey("Given a storage failure for one file", t, func() {
		cause := errors.New("connection reset")
		fe := model.NewFileError(2, "scan.png", model.KindStorage, cause)

		convey.Convey("Then it should match both the kind and the cause", func() {
			convey.So(errors.Is(fe, model.ErrStorage), convey.ShouldBeTrue)
			convey.So(errors.Is(fe, cause), convey.ShouldBeTrue)
			convey.So(errors.Is(fe, model.ErrPublish), convey.ShouldBeFalse)
			convey.So(fe.Error(), convey.ShouldContainSubstring, "scan.png")
		})
	})

	convey.Convey("Given a failure without a cause", t, func() {
		fe := model.NewFileError(0, "a.png", model.KindPublish, nil)
		convey.So(errors.Is(fe, model.ErrPublish), convey.ShouldBeTrue)
	})
}

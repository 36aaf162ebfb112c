package predict_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/okian/sightline/internal/domain/predict"
	. "github.com/smartystreets/goconvey/convey"
)

func TestSimulatedPredictor_Predict(t *testing.T) {
	Convey("Given a simulated predictor without latency", t, func() {
		p := predict.NewSimulatedPredictor(predict.WithLatencyRange(0, 0))
		ctx := context.Background()

		Convey("When classifying an image", func() {
			in := predict.Input{ImageName: "abc123-photo.png", Data: []byte("\x89PNG\r\n\x1a\nsome pixels")}
			got, err := p.Predict(ctx, in)

			Convey("Then it should return one of the known labels", func() {
				So(err, ShouldBeNil)
				So(got.ImageName, ShouldEqual, "abc123-photo.png")
				So(predict.Labels, ShouldContain, got.Label)
			})

			Convey("And the scores should form a distribution", func() {
				So(len(got.Scores), ShouldEqual, 3)
				total := 0.0
				for _, s := range got.Scores {
					So(s, ShouldBeBetweenOrEqual, 0, 1)
					total += s
				}
				So(math.Abs(total-1), ShouldBeLessThan, 1e-9)
			})

			Convey("And the confidence string should list every class", func() {
				So(got.Confidence, ShouldStartWith, "Normal: ")
				So(got.Confidence, ShouldContainSubstring, ", Pneumonia: ")
				So(got.Confidence, ShouldContainSubstring, ", COVID-19: ")
			})

			Convey("And the same image should be classified the same way", func() {
				again, err := p.Predict(ctx, in)
				So(err, ShouldBeNil)
				So(again.Label, ShouldEqual, got.Label)
				So(again.Confidence, ShouldEqual, got.Confidence)
			})
		})

		Convey("When the image is empty", func() {
			_, err := p.Predict(ctx, predict.Input{ImageName: "abc123-empty.png"})

			Convey("Then it should fail", func() {
				So(errors.Is(err, predict.ErrEmptyImage), ShouldBeTrue)
			})
		})
	})

	Convey("Given a slow predictor", t, func() {
		p := predict.NewSimulatedPredictor(predict.WithLatencyRange(time.Second, 2*time.Second), predict.WithSeed(7))

		Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
			defer cancel()
			_, err := p.Predict(ctx, predict.Input{ImageName: "k", Data: []byte{1}})

			Convey("Then it should return the context error", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestFormatConfidence(t *testing.T) {
	Convey("Given a score vector", t, func() {
		Convey("Then it should format with three decimals", func() {
			So(predict.FormatConfidence([]float64{0.9123, 0.07, 0.0177}), ShouldEqual,
				"Normal: 0.912, Pneumonia: 0.070, COVID-19: 0.018")
		})

		Convey("And missing classes should read as zero", func() {
			So(strings.Count(predict.FormatConfidence(nil), "0.000"), ShouldEqual, 3)
		})
	})
}

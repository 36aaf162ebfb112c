package types_test

import (
	"testing"

	"github.com/okian/sightline/internal/domain/model"
	types "github.com/okian/sightline/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestUploadReport(t *testing.T) {
	Convey("Given an upload report with one stored and one failed file", t, func() {
		r := types.UploadReport{
			SessionID: "abc123",
			Stored:    []types.StoredFile{{Index: 0, Name: "photo.png", Key: "abc123-photo.png", Published: true}},
			Failed:    []types.FileFailure{{Index: 1, Name: "photo2.gif", Kind: model.KindValidation, Reason: "too large"}},
		}

		Convey("Then it should be a partial outcome", func() {
			So(r.Outcome(), ShouldEqual, "partial")
			So(r.TotalFailure(), ShouldBeFalse)
			So(r.Keys(), ShouldResemble, []string{"abc123-photo.png"})
			So(r.Published(), ShouldEqual, 1)
		})
	})

	Convey("Given a report where nothing was stored", t, func() {
		r := types.UploadReport{Failed: []types.FileFailure{{Kind: model.KindStorage}}}

		Convey("Then it should be a total failure", func() {
			So(r.TotalFailure(), ShouldBeTrue)
			So(r.Outcome(), ShouldEqual, "failed")
			So(r.Keys(), ShouldBeEmpty)
		})
	})

	Convey("Given a clean report", t, func() {
		r := types.UploadReport{Stored: []types.StoredFile{{Key: "k", Published: false}}}

		Convey("Then it should be ok even when publish is pending", func() {
			So(r.Outcome(), ShouldEqual, "ok")
			So(r.Published(), ShouldEqual, 0)
		})
	})
}

package api

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestKindErrors(t *testing.T) {
	Convey("Given a wrapped kind error", t, func() {
		cause := errors.New("disk full")
		err := WrapKind("api.upload", ErrInternal, cause)

		Convey("Then it matches both the kind and the cause", func() {
			So(errors.Is(err, ErrInternal), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.upload: internal error: disk full")
		})
	})

	Convey("Given a bare kind error", t, func() {
		err := NewKind("api.get_image", ErrNotFound)

		Convey("Then it matches the kind only", func() {
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
			So(errors.Is(err, ErrBadRequest), ShouldBeFalse)
			So(err.Error(), ShouldEqual, "api.get_image: not found")
		})
	})

	Convey("Given HTTP status codes", t, func() {
		So(getErrorType(500), ShouldEqual, "server_error")
		So(getErrorType(413), ShouldEqual, "too_large")
		So(getErrorType(404), ShouldEqual, "not_found")
		So(getErrorType(400), ShouldEqual, "client_error")
		So(getErrorSeverity(502), ShouldEqual, "high")
		So(getErrorSeverity(404), ShouldEqual, "medium")
	})
}

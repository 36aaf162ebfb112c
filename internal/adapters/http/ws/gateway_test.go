package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/registry"
	"github.com/okian/sightline/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func dial(srv *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func readEvent(c *websocket.Conn) (model.Event, error) {
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := c.ReadMessage()
	if err != nil {
		return model.Event{}, err
	}
	return model.DecodeEvent(payload)
}

func TestGateway_Handshake(t *testing.T) {
	Convey("Given a gateway on a test server", t, func() {
		reg := registry.New()
		gw := New(reg)
		srv := httptest.NewServer(gw)
		defer srv.Close()

		Convey("When a client connects without a uid", func() {
			_, resp, err := dial(srv, "")

			Convey("Then the handshake is refused with 400", func() {
				So(err, ShouldEqual, websocket.ErrBadHandshake)
				So(resp, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(reg.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a client connects with a uid containing a slash", func() {
			_, resp, err := dial(srv, "?uid=a%2Fb")

			Convey("Then the handshake is refused with 400", func() {
				So(err, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When a client connects with uid abc123", func() {
			c, _, err := dial(srv, "?uid=abc123")
			So(err, ShouldBeNil)
			defer c.Close()

			Convey("Then the session is registered", func() {
				So(waitFor(func() bool { _, ok := reg.Lookup("abc123"); return ok }), ShouldBeTrue)
			})

			Convey("And a result for abc123 is pushed to it", func() {
				So(waitFor(func() bool { return reg.Len() == 1 }), ShouldBeTrue)
				ok := reg.LookupAndSend(context.Background(), "abc123",
					model.NewResultEvent("abc123-photo.png", "normal", "0.91"))
				So(ok, ShouldBeTrue)

				ev, err := readEvent(c)
				So(err, ShouldBeNil)
				So(ev.Topic, ShouldEqual, model.TopicResult)
				So(ev.Result.ImageName, ShouldEqual, "abc123-photo.png")
				So(ev.Result.Prediction, ShouldEqual, "normal")
				So(ev.Result.Confidence, ShouldEqual, "0.91")
			})

			Convey("And inbound text is echoed back", func() {
				So(c.WriteMessage(websocket.TextMessage, []byte("ping?")), ShouldBeNil)
				_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, payload, err := c.ReadMessage()
				So(err, ShouldBeNil)
				So(string(payload), ShouldEqual, "ping?")
			})

			Convey("And closing the client unregisters it", func() {
				So(waitFor(func() bool { return reg.Len() == 1 }), ShouldBeTrue)
				_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = c.Close()
				So(waitFor(func() bool { return reg.Len() == 0 }), ShouldBeTrue)
				So(reg.LookupAndSend(context.Background(), "abc123", model.NewMessageEvent("late")), ShouldBeFalse)
			})
		})
	})
}

func TestGateway_Replacement(t *testing.T) {
	Convey("Given two connections for the same uid", t, func() {
		reg := registry.New()
		srv := httptest.NewServer(New(reg))
		defer srv.Close()

		first, _, err := dial(srv, "?uid=tab")
		So(err, ShouldBeNil)
		defer first.Close()
		So(waitFor(func() bool { return reg.Len() == 1 }), ShouldBeTrue)
		firstHolder, _ := reg.Lookup("tab")

		second, _, err := dial(srv, "?uid=tab")
		So(err, ShouldBeNil)
		defer second.Close()
		So(waitFor(func() bool { c, _ := reg.Lookup("tab"); return c != firstHolder }), ShouldBeTrue)

		Convey("When the replaced connection closes", func() {
			_ = first.Close()
			time.Sleep(50 * time.Millisecond)

			Convey("Then the newer connection keeps the session", func() {
				So(reg.Len(), ShouldEqual, 1)
				So(reg.LookupAndSend(context.Background(), "tab", model.NewMessageEvent("still here")), ShouldBeTrue)
				ev, err := readEvent(second)
				So(err, ShouldBeNil)
				So(ev.Message.Text, ShouldEqual, "still here")
			})
		})
	})
}

func TestGateway_Anonymous(t *testing.T) {
	Convey("Given a gateway that allows anonymous sessions", t, func() {
		reg := registry.New()
		gw := New(reg, WithAllowAnonymous(true))
		srv := httptest.NewServer(gw)
		defer srv.Close()

		Convey("When a client connects without a uid", func() {
			c, _, err := dial(srv, "")
			So(err, ShouldBeNil)
			defer c.Close()

			Convey("Then it is served but never registered", func() {
				So(waitFor(func() bool { return gw.Connections() == 1 }), ShouldBeTrue)
				So(reg.Len(), ShouldEqual, 0)
				So(c.WriteMessage(websocket.TextMessage, []byte("hi")), ShouldBeNil)
				_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, payload, err := c.ReadMessage()
				So(err, ShouldBeNil)
				So(string(payload), ShouldEqual, "hi")
			})
		})
	})
}

func TestGateway_Shutdown(t *testing.T) {
	Convey("Given a gateway with an open session", t, func() {
		reg := registry.New()
		gw := New(reg, WithWriteTimeout(time.Second), WithPingInterval(time.Minute))
		srv := httptest.NewServer(gw)
		defer srv.Close()

		c, _, err := dial(srv, "?uid=abc123")
		So(err, ShouldBeNil)
		defer c.Close()
		So(waitFor(func() bool { return reg.Len() == 1 }), ShouldBeTrue)

		Convey("When the gateway shuts down", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			So(gw.Shutdown(ctx), ShouldBeNil)

			Convey("Then the registry is empty and the client sees a close", func() {
				So(reg.Len(), ShouldEqual, 0)
				So(gw.Connections(), ShouldEqual, 0)
				_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, _, err := c.ReadMessage()
				So(websocket.IsCloseError(err, websocket.CloseGoingAway), ShouldBeTrue)
			})

			Convey("And new handshakes are refused", func() {
				_, resp, err := dial(srv, "?uid=late")
				So(err, ShouldNotBeNil)
				So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
			})
		})
	})
}

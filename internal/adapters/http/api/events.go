package api

import (
	"net/http"
	"net/url"

	"github.com/okian/sightline/internal/domain/model"
)

// EventsHandler turns worker callbacks into session events. Callers always
// get 200: whether a session was listening is not their concern.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandleResult handles /result?uid&image_name&prediction&confidence[&job_id].
func (h *EventsHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	q := callbackParams(r)
	event := model.NewResultEvent(q.Get("image_name"), q.Get("prediction"), q.Get("confidence")).ForJob(q.Get("job_id"))
	delivered := h.deps.Deliver(r.Context(), model.SessionID(q.Get("uid")), event)
	writeJSON(w, http.StatusOK, ackResponse{Status: "accepted", Delivered: delivered})
}

// HandleMessage handles /message?uid&message.
func (h *EventsHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	q := callbackParams(r)
	event := model.NewMessageEvent(q.Get("message"))
	delivered := h.deps.Deliver(r.Context(), model.SessionID(q.Get("uid")), event)
	writeJSON(w, http.StatusOK, ackResponse{Status: "accepted", Delivered: delivered})
}

// callbackParams merges the query string with a form body, if any.
func callbackParams(r *http.Request) url.Values {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			return r.Form
		}
	}
	return r.URL.Query()
}

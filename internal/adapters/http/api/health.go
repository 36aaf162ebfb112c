package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/sightline/pkg/metrics"
)

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Sessions() int
}

// HealthHandler serves liveness, health and metrics routes.
type HealthHandler struct {
	sessions SessionCounter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(sessions SessionCounter) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// HandleHello handles GET /hello.
func (h *HealthHandler) HandleHello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello Server"))
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// HandleHealth handles GET /healthz.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Connections: h.sessions.Sessions()})
}

// MetricsHandler serves the custom registry in Prometheus exposition format.
func (h *HealthHandler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}

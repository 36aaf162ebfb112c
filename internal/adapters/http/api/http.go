// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/types"
	"github.com/okian/sightline/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	UploadDependencies
	EventDependencies
	ImageDependencies

	// Sessions returns the number of live sessions.
	Sessions() int
}

// Server wires HTTP routes for the relay API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	uploadHandler *UploadHandler
	eventsHandler *EventsHandler
	imagesHandler *ImagesHandler

	sessionHandler http.Handler
	corsOrigins    []string
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{corsOrigins: []string{"*"}}
	cfg := serverOptions{maxFiles: 10, maxFileBytes: 2_000_000}
	for _, opt := range opts {
		opt(s, &cfg)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(statsProvider)
	s.uploadHandler = NewUploadHandler(deps, cfg.maxFiles, cfg.maxFileBytes, s.logger)
	s.eventsHandler = NewEventsHandler(deps)
	s.imagesHandler = NewImagesHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to router.
func (s *Server) Register(_ context.Context, router *mux.Router) {
	router.Use(CORSMiddleware(s.corsOrigins))

	router.HandleFunc("/hello", MetricsMiddleware(s.healthHandler.HandleHello, "hello")).Methods(http.MethodGet)
	router.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	router.Handle("/metrics", s.healthHandler.MetricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)

	router.HandleFunc("/listimages", MetricsMiddleware(s.imagesHandler.HandleList, "listimages")).Methods(http.MethodGet)
	router.HandleFunc("/image/{key}", MetricsMiddleware(s.imagesHandler.HandleGet, "image")).Methods(http.MethodGet)
	router.HandleFunc("/upload/{uid}", MetricsMiddleware(s.uploadHandler.HandleUpload, "upload")).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/result", MetricsMiddleware(s.eventsHandler.HandleResult, "result")).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/message", MetricsMiddleware(s.eventsHandler.HandleMessage, "message")).Methods(http.MethodGet, http.MethodPost)

	if s.sessionHandler != nil {
		router.Handle("/ws", s.sessionHandler)
	}
}

// UploadDependencies is what the upload route needs.
type UploadDependencies interface {
	HandleUpload(ctx context.Context, sid model.SessionID, files []model.File) (types.UploadReport, error)
}

// EventDependencies is what the callback routes need.
type EventDependencies interface {
	Deliver(ctx context.Context, sid model.SessionID, event model.Event) bool
}

// ImageDependencies is what the artifact read routes need.
type ImageDependencies interface {
	ListArtifacts(ctx context.Context) ([]string, error)
	OpenArtifact(ctx context.Context, key string) (io.ReadCloser, blobstore.Object, error)
}

type ackResponse struct {
	Status    string `json:"status"`
	Delivered bool   `json:"delivered"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

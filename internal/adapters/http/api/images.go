package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/pkg/logger"
)

// ImagesHandler serves stored artifacts.
type ImagesHandler struct {
	deps   ImageDependencies
	logger logger.Logger
}

// NewImagesHandler creates a new images handler.
func NewImagesHandler(deps ImageDependencies, log logger.Logger) *ImagesHandler {
	return &ImagesHandler{deps: deps, logger: log}
}

// HandleList handles GET /listimages.
func (h *ImagesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_images"
	keys, err := h.deps.ListArtifacts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage", WrapKind(op, ErrInternal, err))
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// HandleGet handles GET /image/{key}, streaming the stored bytes.
func (h *ImagesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_image"
	key := mux.Vars(r)["key"]

	body, obj, err := h.deps.OpenArtifact(r.Context(), key)
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		return
	case errors.Is(err, blobstore.ErrInvalidKey):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "storage", WrapKind(op, ErrInternal, err))
		return
	}
	defer body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn(r.Context(), "image stream interrupted", logger.String("key", key), logger.Error(err))
	}
}

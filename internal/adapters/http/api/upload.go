package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/pkg/logger"
)

// uploadField is the multipart field name carrying files.
const uploadField = "file"

// multipartOverhead is the slack allowed for part headers and boundaries.
const multipartOverhead = 64 << 10

// discardFactor is how many file limits' worth of an oversize part's tail each
// slot may drain before the body cap is reached.
const discardFactor = 1

// UploadHandler accepts multipart uploads for a session.
type UploadHandler struct {
	deps         UploadDependencies
	maxFiles     int
	maxFileBytes int
	logger       logger.Logger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(deps UploadDependencies, maxFiles, maxFileBytes int, log logger.Logger) *UploadHandler {
	return &UploadHandler{deps: deps, maxFiles: maxFiles, maxFileBytes: maxFileBytes, logger: log}
}

// HandleUpload handles POST /upload/{uid}.
//
// Parts are read up to one byte past the size limit and at most one file past
// the count limit, so the coordinator sees and reports the violation without
// the handler buffering an unbounded body. The remainder of an oversize part
// is drained, not buffered. If the body cap still cuts the request short,
// the files read so far are kept, the part being read is reported as too
// large and the report is marked truncated.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.upload"
	sid := model.SessionID(mux.Vars(r)["uid"])
	if err := sid.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation", WrapKind(op, ErrBadRequest, err))
		return
	}

	slot := int64(h.maxFileBytes)*(1+discardFactor) + 1 + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.maxFiles+1)*slot)

	files, truncated, err := h.readFiles(r)
	if err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", WrapKind(op, ErrBadRequest, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if truncated {
		h.logger.Warn(r.Context(), "upload body cut at cap",
			logger.String("uid", sid.String()), logger.Int("files_read", len(files)))
	}

	// The upload outlives the request: a client that navigates away must not
	// leave a stored file without its job.
	ctx := context.WithoutCancel(r.Context())
	report, err := h.deps.HandleUpload(ctx, sid, files)
	report.Truncated = truncated
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation", WrapKind(op, ErrBadRequest, err))
	case err != nil:
		writeError(w, http.StatusInternalServerError, "internal", WrapKind(op, ErrInternal, err))
	case report.TotalFailure():
		h.logger.Warn(ctx, "upload stored nothing",
			logger.String("uid", sid.String()), logger.Int("failed", len(report.Failed)))
		writeJSON(w, http.StatusInternalServerError, report)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// readFiles returns the file parts of the body. Hitting the body cap after at
// least one file part was seen is not an error: reading stops, and truncated
// reports it.
func (h *UploadHandler) readFiles(r *http.Request) (files []model.File, truncated bool, err error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, false, fmt.Errorf("read multipart: %w", err)
	}
	for len(files) <= h.maxFiles {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isTooLarge(err) && len(files) > 0 {
				return files, true, nil
			}
			return nil, false, fmt.Errorf("next part: %w", err)
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}
		data, err := io.ReadAll(io.LimitReader(part, int64(h.maxFileBytes)+1))
		if err != nil {
			if isTooLarge(err) {
				files = append(files, model.File{
					Name:        part.FileName(),
					ContentType: part.Header.Get("Content-Type"),
					Truncated:   true,
				})
				return files, true, nil
			}
			_ = part.Close()
			return nil, false, fmt.Errorf("read part %q: %w", part.FileName(), err)
		}
		_ = part.Close()
		files = append(files, model.File{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, false, nil
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

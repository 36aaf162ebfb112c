package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/okian/sightline/internal/adapters/blobstore"
	"github.com/okian/sightline/internal/adapters/mq/queue"
	"github.com/okian/sightline/internal/config"
	"github.com/okian/sightline/internal/domain/model"
	"github.com/okian/sightline/internal/domain/types"
	"github.com/okian/sightline/pkg/logger"
	"github.com/okian/sightline/pkg/metrics"
)

// ArtifactWriter is the part of the blob store the upload path needs.
// Create must fail with blobstore.ErrExists when the key is taken.
type ArtifactWriter interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Create(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

// UploadLimits bounds what one upload request may carry.
type UploadLimits struct {
	MaxFiles        int
	MaxFileBytes    int
	AllowedTypes    []string // empty allows every type
	DuplicatePolicy string
	StoreTimeout    time.Duration
	PublishTimeout  time.Duration
}

// DefaultUploadLimits mirrors the configuration defaults.
func DefaultUploadLimits() UploadLimits {
	return LimitsFromConfig(config.New())
}

// LimitsFromConfig extracts upload limits from cfg.
func LimitsFromConfig(cfg *config.Config) UploadLimits {
	return UploadLimits{
		MaxFiles:        cfg.UploadMaxFiles,
		MaxFileBytes:    cfg.UploadMaxFileBytes,
		AllowedTypes:    cfg.UploadAllowedTypes,
		DuplicatePolicy: cfg.UploadDuplicatePolicy,
		StoreTimeout:    cfg.StoreTimeout(),
		PublishTimeout:  cfg.PublishTimeout(),
	}
}

// UploadCoordinator stores each accepted file and publishes one job per
// stored file. A job is never published for a file that was not stored.
type UploadCoordinator struct {
	store     ArtifactWriter
	publisher queue.Publisher
	limits    UploadLimits
	logger    logger.Logger
}

// NewUploadCoordinator wires the coordinator to its collaborators.
func NewUploadCoordinator(store ArtifactWriter, publisher queue.Publisher, limits UploadLimits, log logger.Logger) *UploadCoordinator {
	if log == nil {
		log = logger.Get().Named("upload")
	}
	return &UploadCoordinator{store: store, publisher: publisher, limits: limits, logger: log}
}

// HandleUpload processes files for sid in order. Request level problems
// (bad session id, no files, too many files) fail the whole call with
// model.ErrValidation before any I/O; everything else is reported per file.
func (u *UploadCoordinator) HandleUpload(ctx context.Context, sid model.SessionID, files []model.File) (types.UploadReport, error) {
	report := types.UploadReport{
		SessionID: sid.String(),
		Stored:    []types.StoredFile{},
		Failed:    []types.FileFailure{},
	}

	if err := u.checkRequest(sid, files); err != nil {
		metrics.RecordUploadRequest("rejected")
		return report, err
	}

	for i, f := range files {
		stored, failure := u.handleFile(ctx, sid, i, f)
		if stored != nil {
			report.Stored = append(report.Stored, *stored)
		}
		if failure != nil {
			report.Failed = append(report.Failed, *failure)
			metrics.RecordFileFailure(string(failure.Kind))
			u.logger.Warn(ctx, "upload file failed",
				logger.String("uid", sid.String()),
				logger.Int("index", failure.Index),
				logger.String("name", failure.Name),
				logger.String("kind", string(failure.Kind)),
				logger.String("reason", failure.Reason))
		}
	}

	metrics.RecordUploadRequest(report.Outcome())
	u.logger.Info(ctx, "upload handled",
		logger.String("uid", sid.String()),
		logger.Int("files", len(files)),
		logger.Int("stored", len(report.Stored)),
		logger.Int("published", report.Published()),
		logger.Int("failed", len(report.Failed)))
	return report, nil
}

func (u *UploadCoordinator) checkRequest(sid model.SessionID, files []model.File) error {
	if err := sid.Validate(); err != nil {
		return err
	}
	if len(files) == 0 {
		return model.Validationf("no files in upload")
	}
	if u.limits.MaxFiles > 0 && len(files) > u.limits.MaxFiles {
		return model.Validationf("too many files: %d > %d", len(files), u.limits.MaxFiles)
	}
	return nil
}

func (u *UploadCoordinator) handleFile(ctx context.Context, sid model.SessionID, index int, f model.File) (*types.StoredFile, *types.FileFailure) {
	name := model.BaseName(f.Name)
	fail := func(key string, fe *model.FileError) *types.FileFailure {
		return &types.FileFailure{Index: index, Name: f.Name, Key: key, Kind: fe.Kind, Reason: fe.Err.Error()}
	}

	contentType, err := u.validate(name, f)
	if err != nil {
		return nil, fail("", model.NewFileError(index, f.Name, model.KindValidation, err))
	}

	key := model.ArtifactKey(sid, name)

	if err := u.put(ctx, key, f.Data, contentType); err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return nil, fail(key, model.NewFileError(index, f.Name, model.KindValidation, blobstore.ErrExists))
		}
		return nil, fail(key, model.NewFileError(index, f.Name, model.KindStorage, err))
	}
	metrics.RecordFileStored(f.Size())

	stored := &types.StoredFile{Index: index, Name: f.Name, Key: key, Size: f.Size(), ContentType: contentType}

	if err := u.publish(ctx, model.NewJob(sid, key)); err != nil {
		return stored, fail(key, model.NewFileError(index, f.Name, model.KindPublish, err))
	}
	stored.Published = true
	metrics.RecordJobPublished()
	return stored, nil
}

// validate returns the effective content type of an acceptable file.
func (u *UploadCoordinator) validate(name string, f model.File) (string, error) {
	if name == "" {
		return "", errors.New("missing file name")
	}
	if f.Truncated {
		return "", errors.New("file too large: request body limit reached")
	}
	if len(f.Data) == 0 {
		return "", errors.New("empty file")
	}
	if u.limits.MaxFileBytes > 0 && len(f.Data) > u.limits.MaxFileBytes {
		return "", fmt.Errorf("file too large: %d > %d bytes", len(f.Data), u.limits.MaxFileBytes)
	}

	contentType := detectContentType(f)
	if !u.allowed(contentType) {
		return "", fmt.Errorf("content type %s not allowed", contentType)
	}
	return contentType, nil
}

func (u *UploadCoordinator) allowed(contentType string) bool {
	if len(u.limits.AllowedTypes) == 0 {
		return true
	}
	for _, t := range u.limits.AllowedTypes {
		if strings.EqualFold(strings.TrimSpace(t), contentType) {
			return true
		}
	}
	return false
}

// detectContentType trusts a specific declared type and sniffs otherwise.
func detectContentType(f model.File) string {
	declared := strings.TrimSpace(f.ContentType)
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			declared = strings.ToLower(mt)
		}
	}
	if declared == "" || declared == "application/octet-stream" {
		declared, _, _ = strings.Cut(http.DetectContentType(f.Data), ";")
	}
	return declared
}

func (u *UploadCoordinator) put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := withTimeout(ctx, u.limits.StoreTimeout)
	defer cancel()

	write := u.store.Put
	if u.limits.DuplicatePolicy == config.DuplicateReject {
		write = u.store.Create
	}

	start := time.Now()
	err := write(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	metrics.RecordStoreLatency(float64(time.Since(start).Milliseconds()))
	if errors.Is(err, blobstore.ErrExists) {
		return err
	}
	if err != nil {
		metrics.RecordErrorByComponent("blobstore", "put")
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (u *UploadCoordinator) publish(ctx context.Context, job model.Job) error {
	ctx, cancel := withTimeout(ctx, u.limits.PublishTimeout)
	defer cancel()

	start := time.Now()
	err := u.publisher.Publish(ctx, job)
	metrics.RecordPublishLatency(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordErrorByComponent("queue", "publish")
		return fmt.Errorf("publish %s: %w", job.ImageName, err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

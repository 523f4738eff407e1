package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/queue"
)

var (
	ErrNotFound     = errors.New("media not found")
	ErrUploadsOff   = errors.New("uploads are disabled for organization")
	ErrInvalidType  = errors.New("unsupported media type")
	ErrInvalidProto = errors.New("unsupported protocol")
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, m *models.Media) error
	GetByVideoID(ctx context.Context, videoID uuid.UUID) (*models.Media, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.Media, error)
	Transition(ctx context.Context, videoID uuid.UUID, target models.MediaState, sources []models.MediaState) (models.MediaState, error)
	Revert(ctx context.Context, videoID uuid.UUID, from, to models.MediaState) error
	SetMetadata(ctx context.Context, videoID uuid.UUID, key, value string) error
	DeleteMetadata(ctx context.Context, videoID uuid.UUID, key string) error
	ClearMetadata(ctx context.Context, videoID uuid.UUID) error
	SetResult(ctx context.Context, videoID uuid.UUID, durationSec int, storageBytes int64) error
	Delete(ctx context.Context, videoID uuid.UUID) error
}

// OrgStore resolves the tenant that owns a media asset.
type OrgStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// ObjectStore is the slice of S3 the service uses.
type ObjectStore interface {
	PresignUpload(ctx context.Context, bucket, key, contentType string) (string, error)
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	SizeOfPrefix(ctx context.Context, bucket, prefix string) (int64, error)
}

// Transcoder submits transcode jobs.
type Transcoder interface {
	SubmitJob(ctx context.Context, bucket, videoID, mediaType string) (string, error)
}

// CDN invalidates cached transcode output.
type CDN interface {
	CreateInvalidation(ctx context.Context, distributionID string, paths []string) error
}

// Scheduler enqueues delayed reconciliation polls.
type Scheduler interface {
	SchedulePoll(ctx context.Context, jobType queue.JobType, videoID uuid.UUID, delay time.Duration) error
}

type Service struct {
	store      Store
	orgs       OrgStore
	objects    ObjectStore
	transcoder Transcoder
	cdn        CDN
	scheduler  Scheduler
	jobPoll    time.Duration
	logger     *zap.Logger
}

func NewService(store Store, orgs OrgStore, objects ObjectStore, transcoder Transcoder, cdn CDN, scheduler Scheduler, jobPoll time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		orgs:       orgs,
		objects:    objects,
		transcoder: transcoder,
		cdn:        cdn,
		scheduler:  scheduler,
		jobPoll:    jobPoll,
		logger:     logger,
	}
}

type CreateInput struct {
	Name      string
	MediaType string
	Protocol  string
	CreatedBy *uuid.UUID
}

// CreateResult is a fresh media plus the one-shot upload grant for its
// source file.
type CreateResult struct {
	Media     *models.Media
	UploadURL string
}

// Create registers a new asset in waiting_file and hands back a presigned
// PUT for the source object.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreateInput) (*CreateResult, error) {
	if in.MediaType != models.MediaTypeVideo && in.MediaType != models.MediaTypeAudio {
		return nil, ErrInvalidType
	}
	if in.Protocol != models.ProtocolHLS && in.Protocol != models.ProtocolDASH {
		return nil, ErrInvalidProto
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s not found", orgID)
	}
	if !org.UploadEnabled {
		return nil, ErrUploadsOff
	}

	m := &models.Media{
		Name:           in.Name,
		OrganizationID: orgID,
		CreatedBy:      in.CreatedBy,
		MediaType:      in.MediaType,
		Protocol:       in.Protocol,
		State:          models.MediaWaitingFile,
	}
	if err := s.store.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create media: %w", err)
	}

	contentType := "video/mp4"
	if in.MediaType == models.MediaTypeAudio {
		contentType = "audio/mpeg"
	}
	url, err := s.objects.PresignUpload(ctx, org.BucketName, sourceKey(m.VideoID), contentType)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	s.logger.Info("media created",
		zap.String("video_id", m.VideoID.String()),
		zap.String("organization_id", orgID.String()))
	return &CreateResult{Media: m, UploadURL: url}, nil
}

func (s *Service) Get(ctx context.Context, videoID uuid.UUID) (*models.Media, error) {
	m, err := s.store.GetByVideoID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]models.Media, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.ListByOrganization(ctx, orgID, limit, offset)
}

// transition applies event as a compare-and-set against the source set.
func (s *Service) transition(ctx context.Context, videoID uuid.UUID, event models.MediaEvent) (prev models.MediaState, target models.MediaState, err error) {
	sources, target, ok := models.MediaEdge(event)
	if !ok {
		return "", "", models.ErrTransitionNotAllowed
	}
	prev, err = s.store.Transition(ctx, videoID, target, sources)
	return prev, target, err
}

// Queue notifies that the source file landed and submits the transcode
// job. The state moves first so a duplicate notification cannot submit
// twice; a failed submit falls back to queuing_failed.
func (s *Service) Queue(ctx context.Context, videoID uuid.UUID) (*models.Media, error) {
	m, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return nil, err
	}

	if _, _, err := s.transition(ctx, videoID, models.MediaEventQueue); err != nil {
		return nil, err
	}
	jobID, err := s.transcoder.SubmitJob(ctx, org.BucketName, videoID.String(), m.MediaType)
	if err != nil {
		s.logger.Error("transcode submit failed", zap.String("video_id", videoID.String()), zap.Error(err))
		if rerr := s.store.Revert(ctx, videoID, models.MediaQueued, models.MediaQueuingFailed); rerr != nil {
			s.logger.Error("queuing_failed fallback failed", zap.String("video_id", videoID.String()), zap.Error(rerr))
		}
		return nil, fmt.Errorf("submit transcode job: %w", err)
	}
	if err := s.store.SetMetadata(ctx, videoID, models.MetaConvertJobID, jobID); err != nil {
		return nil, err
	}
	if err := s.scheduler.SchedulePoll(ctx, queue.JobTypeCheckJobStatus, videoID, s.jobPoll); err != nil {
		return nil, fmt.Errorf("schedule job poll: %w", err)
	}
	s.logger.Info("media queued",
		zap.String("video_id", videoID.String()),
		zap.String("job_id", jobID))
	return s.Get(ctx, videoID)
}

// MarkQueueFailed records that the source upload never completed. Only
// valid from waiting_file; an asset whose file already landed keeps its
// state.
func (s *Service) MarkQueueFailed(ctx context.Context, videoID uuid.UUID) (*models.Media, error) {
	if _, _, err := s.transition(ctx, videoID, models.MediaEventQueueFail); err != nil {
		return nil, err
	}
	s.logger.Warn("media queuing failed", zap.String("video_id", videoID.String()))
	return s.Get(ctx, videoID)
}

// MarkProcessing is applied by the reconciler when the job reports
// PROGRESSING.
func (s *Service) MarkProcessing(ctx context.Context, videoID uuid.UUID) error {
	_, _, err := s.transition(ctx, videoID, models.MediaEventProcess)
	return err
}

// UpdateProgress records the job's completion percentage.
func (s *Service) UpdateProgress(ctx context.Context, videoID uuid.UUID, percent int) error {
	return s.store.SetMetadata(ctx, videoID, models.MetaJobPercent, fmt.Sprintf("%d", percent))
}

// MarkProcessingFailed is applied when the transcode job errors.
func (s *Service) MarkProcessingFailed(ctx context.Context, videoID uuid.UUID) error {
	if _, _, err := s.transition(ctx, videoID, models.MediaEventProcessFail); err != nil {
		return err
	}
	s.logger.Warn("transcode failed", zap.String("video_id", videoID.String()))
	return nil
}

// Finish completes the transcode: record the duration reported by the
// job (rounded up to whole seconds) and measure the asset's storage
// footprint under its prefix.
func (s *Service) Finish(ctx context.Context, videoID uuid.UUID, durationMS int64) error {
	m, err := s.Get(ctx, videoID)
	if err != nil {
		return err
	}
	org, err := s.orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return err
	}
	if _, _, err := s.transition(ctx, videoID, models.MediaEventFinish); err != nil {
		return err
	}
	durationSec := int((durationMS + 999) / 1000)
	size, err := s.objects.SizeOfPrefix(ctx, org.BucketName, videoID.String()+"/")
	if err != nil {
		s.logger.Error("storage size failed", zap.String("video_id", videoID.String()), zap.Error(err))
		size = 0
	}
	if err := s.store.SetResult(ctx, videoID, durationSec, size); err != nil {
		return err
	}
	if err := s.store.DeleteMetadata(ctx, videoID, models.MetaJobPercent); err != nil {
		s.logger.Error("clear progress failed", zap.String("video_id", videoID.String()), zap.Error(err))
	}
	s.logger.Info("media finished",
		zap.String("video_id", videoID.String()),
		zap.Int("duration_sec", durationSec),
		zap.Int64("storage_bytes", size))
	return nil
}

// Reprocess re-runs the transcode. Previous output is removed and the
// CDN cache for it invalidated before the new job is submitted.
func (s *Service) Reprocess(ctx context.Context, videoID uuid.UUID) (*models.Media, error) {
	m, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return nil, err
	}

	prev, _, err := s.transition(ctx, videoID, models.MediaEventReprocess)
	if err != nil {
		return nil, err
	}
	if err := s.store.ClearMetadata(ctx, videoID); err != nil {
		return nil, err
	}
	for _, prefix := range outputPrefixes(videoID, m.MediaType) {
		if err := s.objects.DeletePrefix(ctx, org.BucketName, prefix); err != nil {
			s.logger.Error("delete output failed",
				zap.String("video_id", videoID.String()),
				zap.String("prefix", prefix),
				zap.Error(err))
		}
	}
	if org.CFID != "" {
		if err := s.cdn.CreateInvalidation(ctx, org.CFID, invalidationPaths(videoID, m.MediaType)); err != nil {
			s.logger.Error("invalidation failed", zap.String("video_id", videoID.String()), zap.Error(err))
		}
	}
	jobID, err := s.transcoder.SubmitJob(ctx, org.BucketName, videoID.String(), m.MediaType)
	if err != nil {
		if rerr := s.store.Revert(ctx, videoID, models.MediaQueued, prev); rerr != nil {
			s.logger.Error("reprocess revert failed", zap.String("video_id", videoID.String()), zap.Error(rerr))
		}
		return nil, fmt.Errorf("submit transcode job: %w", err)
	}
	if err := s.store.SetMetadata(ctx, videoID, models.MetaConvertJobID, jobID); err != nil {
		return nil, err
	}
	if err := s.scheduler.SchedulePoll(ctx, queue.JobTypeCheckJobStatus, videoID, s.jobPoll); err != nil {
		return nil, fmt.Errorf("schedule job poll: %w", err)
	}
	return s.Get(ctx, videoID)
}

// Delete removes the asset's objects, invalidates the CDN cache for its
// prefix, and drops the record.
func (s *Service) Delete(ctx context.Context, videoID uuid.UUID) error {
	m, err := s.Get(ctx, videoID)
	if err != nil {
		return err
	}
	org, err := s.orgs.GetByID(ctx, m.OrganizationID)
	if err != nil {
		return err
	}
	if err := s.objects.DeletePrefix(ctx, org.BucketName, videoID.String()+"/"); err != nil {
		return fmt.Errorf("delete objects: %w", err)
	}
	if org.CFID != "" {
		if err := s.cdn.CreateInvalidation(ctx, org.CFID, []string{"/" + videoID.String() + "/*"}); err != nil {
			s.logger.Error("invalidation failed", zap.String("video_id", videoID.String()), zap.Error(err))
		}
	}
	if err := s.store.Delete(ctx, videoID); err != nil {
		return err
	}
	s.logger.Info("media deleted", zap.String("video_id", videoID.String()))
	return nil
}

// PlaybackURL builds the CDN URL for the asset's primary playlist.
func PlaybackURL(m *models.Media, org *models.Organization) string {
	if org.CFDomain == "" {
		return ""
	}
	switch m.MediaType {
	case models.MediaTypeAudio:
		return fmt.Sprintf("https://%s/%s/audio/output.mp4", org.CFDomain, m.VideoID)
	default:
		return fmt.Sprintf("https://%s/%s/hls/output.m3u8", org.CFDomain, m.VideoID)
	}
}

func sourceKey(videoID uuid.UUID) string {
	return videoID.String() + "/input.mp4"
}

func outputPrefixes(videoID uuid.UUID, mediaType string) []string {
	id := videoID.String()
	if mediaType == models.MediaTypeAudio {
		return []string{id + "/audio/"}
	}
	return []string{id + "/hls/", id + "/thumbs/"}
}

func invalidationPaths(videoID uuid.UUID, mediaType string) []string {
	id := videoID.String()
	if mediaType == models.MediaTypeAudio {
		return []string{"/" + id + "/audio/*"}
	}
	return []string{"/" + id + "/hls/*", "/" + id + "/thumbs/*"}
}

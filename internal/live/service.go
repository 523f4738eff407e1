package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/cloud"
	"github.com/videohub/backend/pkg/queue"
)

var (
	ErrNotFound   = errors.New("live video not found")
	ErrInvalidGeo = errors.New("unsupported geolocation type")
)

// Store is the persistence surface the service needs.
type Store interface {
	Create(ctx context.Context, l *models.LiveVideo) error
	GetByVideoID(ctx context.Context, videoID uuid.UUID) (*models.LiveVideo, error)
	GetByChannelARN(ctx context.Context, channelARN string) (*models.LiveVideo, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]models.LiveVideo, error)
	Transition(ctx context.Context, videoID uuid.UUID, target models.LiveState, sources []models.LiveState) (models.LiveState, error)
	Revert(ctx context.Context, videoID uuid.UUID, from, to models.LiveState) error
	SetChannelResources(ctx context.Context, videoID uuid.UUID, inputID, inputURL, channelARN string) error
	SetTopicARN(ctx context.Context, videoID uuid.UUID, topicARN string) error
	SetDistribution(ctx context.Context, videoID uuid.UUID, cfID, cfDomain string) error
	SetInputState(ctx context.Context, videoID uuid.UUID, alerts []string) error
	SetGeoRestriction(ctx context.Context, videoID uuid.UUID, geoType models.GeoType, countries []string) error
	Delete(ctx context.Context, videoID uuid.UUID) error
}

// OrgStore resolves the tenant that owns a live video.
type OrgStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// ChannelService drives the external live channel and its input.
type ChannelService interface {
	CreateInput(ctx context.Context, videoID string) (inputID, inputURL string, err error)
	CreateChannel(ctx context.Context, name, bucket, videoID, inputID string) (string, error)
	StartChannel(ctx context.Context, channelID string) error
	StopChannel(ctx context.Context, channelID string) error
	DescribeChannel(ctx context.Context, channelID string) (*cloud.ChannelStatus, error)
	DeleteChannel(ctx context.Context, channelID string) error
	DeleteInput(ctx context.Context, inputID string) error
}

// CDNService manages the per-video delivery distribution.
type CDNService interface {
	CreateDistribution(ctx context.Context, bucket, originPath string, defaultTTL, maxTTL int64) (id, domain string, err error)
	UpdateGeoRestriction(ctx context.Context, distributionID, geoType string, countries []string) error
	DisableDistribution(ctx context.Context, distributionID string) error
	DeleteDistribution(ctx context.Context, distributionID string) error
}

// AlertRuleService routes channel alert events into the video's topic.
type AlertRuleService interface {
	PutAlertRule(ctx context.Context, name, channelARN string) error
	DeleteAlertRule(ctx context.Context, name string) error
	AddTopicTarget(ctx context.Context, rule, targetID, topicARN string) error
	RemoveTopicTarget(ctx context.Context, rule, targetID string) error
}

// TopicService manages the video's alert notification topic.
type TopicService interface {
	CreateTopic(ctx context.Context, name string) (string, error)
	DeleteTopic(ctx context.Context, topicARN string) error
	Subscribe(ctx context.Context, topicARN, endpoint string) (string, error)
	UnsubscribeAll(ctx context.Context, topicARN string) error
}

// LogService detects encoder input on the channel.
type LogService interface {
	HasRecentConnection(ctx context.Context, channelARN string, window time.Duration) (bool, error)
}

// ObjectStore removes live output objects.
type ObjectStore interface {
	DeletePrefix(ctx context.Context, bucket, prefix string) error
}

// Scheduler enqueues delayed reconciliation polls.
type Scheduler interface {
	SchedulePoll(ctx context.Context, jobType queue.JobType, videoID uuid.UUID, delay time.Duration) error
}

// Publisher pushes state-change events to connected monitors.
type Publisher interface {
	Publish(videoID uuid.UUID, event string, payload interface{})
}

// Config tunes the reconciliation cadence.
type Config struct {
	NotifyURL        string
	ChannelPollDelay time.Duration
	InputPollDelay   time.Duration
}

type Service struct {
	store     Store
	orgs      OrgStore
	channels  ChannelService
	cdn       CDNService
	rules     AlertRuleService
	topics    TopicService
	logs      LogService
	objects   ObjectStore
	scheduler Scheduler
	publisher Publisher
	cfg       Config
	logger    *zap.Logger
}

func NewService(store Store, orgs OrgStore, channels ChannelService, cdn CDNService,
	rules AlertRuleService, topics TopicService, logs LogService, objects ObjectStore,
	scheduler Scheduler, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChannelPollDelay <= 0 {
		cfg.ChannelPollDelay = 10 * time.Second
	}
	if cfg.InputPollDelay <= 0 {
		cfg.InputPollDelay = 10 * time.Second
	}
	return &Service{
		store:     store,
		orgs:      orgs,
		channels:  channels,
		cdn:       cdn,
		rules:     rules,
		topics:    topics,
		logs:      logs,
		objects:   objects,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    logger,
	}
}

type CreateInput struct {
	Name      string
	CreatedBy *uuid.UUID
}

// Create registers a live video and provisions its external resources:
// input, channel, alert topic and rule, notification subscription, and
// delivery distribution. Failures after the row exists leave partial
// handles in place; Delete tears down whatever was provisioned.
func (s *Service) Create(ctx context.Context, orgID uuid.UUID, in CreateInput) (*models.LiveVideo, error) {
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s not found", orgID)
	}

	l := &models.LiveVideo{
		Name:            in.Name,
		OrganizationID:  orgID,
		CreatedBy:       in.CreatedBy,
		State:           models.LiveOff,
		GeolocationType: models.GeoNone,
	}
	if err := s.store.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create live video: %w", err)
	}
	videoID := l.VideoID.String()

	inputID, inputURL, err := s.channels.CreateInput(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("create input: %w", err)
	}
	channelARN, err := s.channels.CreateChannel(ctx, l.Name, org.BucketName, videoID, inputID)
	if err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	if err := s.store.SetChannelResources(ctx, l.VideoID, inputID, inputURL, channelARN); err != nil {
		return nil, err
	}
	l.MLInputID, l.MLInputURL, l.MLChannelARN = inputID, inputURL, channelARN

	topicARN, err := s.topics.CreateTopic(ctx, "live-alerts-"+videoID)
	if err != nil {
		return nil, fmt.Errorf("create topic: %w", err)
	}
	if err := s.store.SetTopicARN(ctx, l.VideoID, topicARN); err != nil {
		return nil, err
	}
	l.SNSTopicARN = topicARN

	if err := s.rules.PutAlertRule(ctx, videoID, channelARN); err != nil {
		return nil, fmt.Errorf("put alert rule: %w", err)
	}
	if err := s.rules.AddTopicTarget(ctx, videoID, videoID, topicARN); err != nil {
		return nil, fmt.Errorf("add alert target: %w", err)
	}
	if s.cfg.NotifyURL != "" {
		if _, err := s.topics.Subscribe(ctx, topicARN, s.cfg.NotifyURL); err != nil {
			return nil, fmt.Errorf("subscribe notify endpoint: %w", err)
		}
	}

	cfID, cfDomain, err := s.cdn.CreateDistribution(ctx, org.BucketName, "/live/"+videoID, 0, 60)
	if err != nil {
		return nil, fmt.Errorf("create distribution: %w", err)
	}
	if err := s.store.SetDistribution(ctx, l.VideoID, cfID, cfDomain); err != nil {
		return nil, err
	}
	l.CFID, l.CFDomain = cfID, cfDomain

	s.logger.Info("live video created",
		zap.String("video_id", videoID),
		zap.String("channel_arn", channelARN))
	return l, nil
}

func (s *Service) Get(ctx context.Context, videoID uuid.UUID) (*models.LiveVideo, error) {
	l, err := s.store.GetByVideoID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrNotFound
	}
	return l, nil
}

func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]models.LiveVideo, error) {
	return s.store.ListByOrganization(ctx, orgID)
}

// SetPublisher attaches the monitor hub. Transitions applied before it
// is set are not announced.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *Service) transition(ctx context.Context, videoID uuid.UUID, event models.LiveEvent) (models.LiveState, error) {
	sources, target, ok := models.LiveEdge(event)
	if !ok {
		return "", models.ErrTransitionNotAllowed
	}
	prev, err := s.store.Transition(ctx, videoID, target, sources)
	if err != nil {
		return prev, err
	}
	s.publishState(videoID, target)
	return prev, nil
}

func (s *Service) publishState(videoID uuid.UUID, state models.LiveState) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(videoID, "state", map[string]interface{}{
		"video_id": videoID,
		"state":    state,
	})
}

// Start brings the channel up. Calling it while already starting or
// running is a no-op; the state moves before the external call so only
// one caller performs the start.
func (s *Service) Start(ctx context.Context, videoID uuid.UUID) (*models.LiveVideo, error) {
	l, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	switch l.State {
	case models.LiveStarting, models.LiveWaitingInput, models.LiveOn:
		return l, nil
	}

	prev, err := s.transition(ctx, videoID, models.LiveEventStart)
	if err != nil {
		return nil, err
	}
	if err := s.channels.StartChannel(ctx, l.MLChannelID()); err != nil {
		if rerr := s.store.Revert(ctx, videoID, models.LiveStarting, prev); rerr != nil {
			s.logger.Error("start revert failed", zap.String("video_id", videoID.String()), zap.Error(rerr))
		} else {
			s.publishState(videoID, prev)
		}
		return nil, fmt.Errorf("start channel: %w", err)
	}
	if err := s.scheduler.SchedulePoll(ctx, queue.JobTypeCheckLiveState, videoID, s.cfg.ChannelPollDelay); err != nil {
		return nil, fmt.Errorf("schedule channel poll: %w", err)
	}
	s.logger.Info("live start requested", zap.String("video_id", videoID.String()))
	return s.Get(ctx, videoID)
}

// Stop brings the channel down. Calling it while already stopping or
// off is a no-op.
func (s *Service) Stop(ctx context.Context, videoID uuid.UUID) (*models.LiveVideo, error) {
	l, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	switch l.State {
	case models.LiveStopping, models.LiveOff:
		return l, nil
	}

	prev, err := s.transition(ctx, videoID, models.LiveEventStop)
	if err != nil {
		return nil, err
	}
	if err := s.channels.StopChannel(ctx, l.MLChannelID()); err != nil {
		if rerr := s.store.Revert(ctx, videoID, models.LiveStopping, prev); rerr != nil {
			s.logger.Error("stop revert failed", zap.String("video_id", videoID.String()), zap.Error(rerr))
		} else {
			s.publishState(videoID, prev)
		}
		return nil, fmt.Errorf("stop channel: %w", err)
	}
	if err := s.scheduler.SchedulePoll(ctx, queue.JobTypeCheckLiveState, videoID, s.cfg.ChannelPollDelay); err != nil {
		return nil, fmt.Errorf("schedule channel poll: %w", err)
	}
	s.logger.Info("live stop requested", zap.String("video_id", videoID.String()))
	return s.Get(ctx, videoID)
}

// CheckChannelState reconciles the stored state against the external
// channel. Settled means the poll chain can end.
func (s *Service) CheckChannelState(ctx context.Context, videoID uuid.UUID) (settled bool, err error) {
	l, err := s.store.GetByVideoID(ctx, videoID)
	if err != nil {
		return false, err
	}
	if l == nil {
		return true, nil
	}

	switch l.State {
	case models.LiveStarting:
		status, err := s.channels.DescribeChannel(ctx, l.MLChannelID())
		if err != nil {
			return false, err
		}
		if status.State != "RUNNING" {
			return false, nil
		}
		if _, err := s.transition(ctx, videoID, models.LiveEventWait); err != nil {
			if errors.Is(err, models.ErrTransitionNotAllowed) {
				return true, nil
			}
			return false, err
		}
		if err := s.scheduler.SchedulePoll(ctx, queue.JobTypeCheckInput, videoID, s.cfg.InputPollDelay); err != nil {
			return false, err
		}
		s.logger.Info("live waiting for input", zap.String("video_id", videoID.String()))
		return true, nil

	case models.LiveStopping:
		status, err := s.channels.DescribeChannel(ctx, l.MLChannelID())
		if err != nil {
			if errors.Is(err, cloud.ErrChannelNotFound) {
				return true, s.settleOff(ctx, l)
			}
			return false, err
		}
		if status.State != "IDLE" {
			return false, nil
		}
		return true, s.settleOff(ctx, l)

	default:
		// State already settled by another actor.
		return true, nil
	}
}

func (s *Service) settleOff(ctx context.Context, l *models.LiveVideo) error {
	org, err := s.orgs.GetByID(ctx, l.OrganizationID)
	if err != nil {
		return err
	}
	if org != nil {
		prefix := "live/" + l.VideoID.String() + "/"
		if err := s.objects.DeletePrefix(ctx, org.BucketName, prefix); err != nil {
			s.logger.Error("delete live output failed",
				zap.String("video_id", l.VideoID.String()), zap.Error(err))
		}
	}
	if _, err := s.transition(ctx, l.VideoID, models.LiveEventOff); err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			return nil
		}
		return err
	}
	if err := s.store.SetInputState(ctx, l.VideoID, nil); err != nil {
		return err
	}
	s.logger.Info("live off", zap.String("video_id", l.VideoID.String()))
	return nil
}

// CheckInput reconciles waiting_input against the channel's ingest logs.
// Settled means the poll chain can end.
func (s *Service) CheckInput(ctx context.Context, videoID uuid.UUID) (settled bool, err error) {
	l, err := s.store.GetByVideoID(ctx, videoID)
	if err != nil {
		return false, err
	}
	if l == nil || l.State != models.LiveWaitingInput {
		return true, nil
	}
	connected, err := s.logs.HasRecentConnection(ctx, l.MLChannelARN, s.cfg.InputPollDelay)
	if err != nil {
		return false, err
	}
	if !connected {
		return false, nil
	}
	if _, err := s.transition(ctx, videoID, models.LiveEventOn); err != nil {
		if errors.Is(err, models.ErrTransitionNotAllowed) {
			return true, nil
		}
		return false, err
	}
	s.logger.Info("live on", zap.String("video_id", videoID.String()))
	return true, nil
}

// Delete tears down the live video. The channel must be off. External
// resources are released synchronously where possible; channel deletion
// is asynchronous, so the remainder is finished by a poll once the
// channel is gone.
func (s *Service) Delete(ctx context.Context, videoID uuid.UUID) error {
	l, err := s.Get(ctx, videoID)
	if err != nil {
		return err
	}
	if _, err := s.transition(ctx, videoID, models.LiveEventDelete); err != nil {
		return err
	}

	if l.MLChannelARN != "" {
		if err := s.channels.DeleteChannel(ctx, l.MLChannelID()); err != nil {
			s.logger.Error("delete channel failed", zap.String("video_id", videoID.String()), zap.Error(err))
		}
	}
	id := videoID.String()
	if err := s.rules.RemoveTopicTarget(ctx, id, id); err != nil {
		s.logger.Error("remove alert target failed", zap.String("video_id", id), zap.Error(err))
	}
	if err := s.rules.DeleteAlertRule(ctx, id); err != nil {
		s.logger.Error("delete alert rule failed", zap.String("video_id", id), zap.Error(err))
	}
	if l.SNSTopicARN != "" {
		if err := s.topics.UnsubscribeAll(ctx, l.SNSTopicARN); err != nil {
			s.logger.Error("unsubscribe failed", zap.String("video_id", id), zap.Error(err))
		}
		if err := s.topics.DeleteTopic(ctx, l.SNSTopicARN); err != nil {
			s.logger.Error("delete topic failed", zap.String("video_id", id), zap.Error(err))
		}
	}
	if l.CFID != "" {
		if err := s.cdn.DisableDistribution(ctx, l.CFID); err != nil {
			s.logger.Error("disable distribution failed", zap.String("video_id", id), zap.Error(err))
		}
	}
	if err := s.scheduler.SchedulePoll(ctx, queue.JobTypeFinalizeLiveDelete, videoID, s.cfg.ChannelPollDelay); err != nil {
		return fmt.Errorf("schedule delete poll: %w", err)
	}
	s.logger.Info("live delete requested", zap.String("video_id", id))
	return nil
}

// FinalizeDelete completes teardown once the channel is fully gone.
// Settled means the record was removed.
func (s *Service) FinalizeDelete(ctx context.Context, videoID uuid.UUID) (settled bool, err error) {
	l, err := s.store.GetByVideoID(ctx, videoID)
	if err != nil {
		return false, err
	}
	if l == nil {
		return true, nil
	}

	if l.MLChannelARN != "" {
		status, err := s.channels.DescribeChannel(ctx, l.MLChannelID())
		if err != nil && !errors.Is(err, cloud.ErrChannelNotFound) {
			return false, err
		}
		if err == nil && status.State != "DELETED" {
			return false, nil
		}
	}
	if l.MLInputID != "" {
		if err := s.channels.DeleteInput(ctx, l.MLInputID); err != nil {
			return false, fmt.Errorf("delete input: %w", err)
		}
	}
	if l.CFID != "" {
		if err := s.cdn.DeleteDistribution(ctx, l.CFID); err != nil {
			s.logger.Error("delete distribution failed", zap.String("video_id", videoID.String()), zap.Error(err))
		}
	}
	if err := s.store.Delete(ctx, videoID); err != nil {
		return false, err
	}
	s.logger.Info("live video deleted", zap.String("video_id", videoID.String()))
	return true, nil
}

// UpdateGeoRestriction changes the delivery geo policy on the video's
// distribution.
func (s *Service) UpdateGeoRestriction(ctx context.Context, videoID uuid.UUID, geoType models.GeoType, countries []string) (*models.LiveVideo, error) {
	switch geoType {
	case models.GeoNone, models.GeoWhitelist, models.GeoBlacklist:
	default:
		return nil, ErrInvalidGeo
	}
	cleaned := make([]string, 0, len(countries))
	for _, c := range countries {
		if c != "" {
			cleaned = append(cleaned, c)
		}
	}
	countries = cleaned
	l, err := s.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if l.CFID != "" {
		if err := s.cdn.UpdateGeoRestriction(ctx, l.CFID, string(geoType), countries); err != nil {
			return nil, fmt.Errorf("update geo restriction: %w", err)
		}
	}
	if err := s.store.SetGeoRestriction(ctx, videoID, geoType, countries); err != nil {
		return nil, err
	}
	return s.Get(ctx, videoID)
}

// PlaybackURL builds the CDN URL for the live playlist.
func PlaybackURL(l *models.LiveVideo) string {
	if l.CFDomain == "" {
		return ""
	}
	return fmt.Sprintf("https://%s/output.m3u8", l.CFDomain)
}

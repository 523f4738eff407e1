package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/media"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/cloud"
	"github.com/videohub/backend/pkg/queue"
)

// MediaService is the slice of the media service the processor drives.
type MediaService interface {
	Get(ctx context.Context, videoID uuid.UUID) (*models.Media, error)
	MarkProcessing(ctx context.Context, videoID uuid.UUID) error
	UpdateProgress(ctx context.Context, videoID uuid.UUID, percent int) error
	MarkProcessingFailed(ctx context.Context, videoID uuid.UUID) error
	Finish(ctx context.Context, videoID uuid.UUID, durationMS int64) error
}

// LiveService is the slice of the live service the processor drives.
// Each check reports settled=true when its poll chain can end.
type LiveService interface {
	CheckChannelState(ctx context.Context, videoID uuid.UUID) (bool, error)
	CheckInput(ctx context.Context, videoID uuid.UUID) (bool, error)
	FinalizeDelete(ctx context.Context, videoID uuid.UUID) (bool, error)
}

// CutSweeper advances due cuts.
type CutSweeper interface {
	Sweep(ctx context.Context, now time.Time)
}

// JobReader reads transcode job status.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*cloud.JobStatus, error)
}

// Publisher pushes progress events to connected monitors.
type Publisher interface {
	Publish(videoID uuid.UUID, event string, payload interface{})
}

// Config tunes the reconciliation loops.
type Config struct {
	ChannelPollDelay time.Duration
	JobPollDelay     time.Duration
	InputPollDelay   time.Duration
	CutTickInterval  time.Duration
	// MaxPollAttempts bounds a poll chain. A chain that exceeds it is
	// dropped with a warning instead of polling forever.
	MaxPollAttempts int
}

// Processor runs the reconciliation worker: it promotes due jobs,
// consumes the ready queue, and ticks the cut schedule.
type Processor struct {
	queue     *queue.Queue
	media     MediaService
	live      LiveService
	cuts      CutSweeper
	jobs      JobReader
	publisher Publisher
	cfg       Config
	logger    *zap.Logger
}

// NewProcessor creates a reconciliation processor.
func NewProcessor(q *queue.Queue, mediaSvc MediaService, liveSvc LiveService,
	cutsSvc CutSweeper, jobs JobReader, publisher Publisher, cfg Config, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChannelPollDelay <= 0 {
		cfg.ChannelPollDelay = 10 * time.Second
	}
	if cfg.JobPollDelay <= 0 {
		cfg.JobPollDelay = 5 * time.Second
	}
	if cfg.InputPollDelay <= 0 {
		cfg.InputPollDelay = 10 * time.Second
	}
	if cfg.CutTickInterval <= 0 {
		cfg.CutTickInterval = time.Minute
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 720
	}
	return &Processor{
		queue:     q,
		media:     mediaSvc,
		live:      liveSvc,
		cuts:      cutsSvc,
		jobs:      jobs,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process executes one job. Unsettled polls report the delay before the
// next attempt; settled polls report done=true.
func (p *Processor) Process(ctx context.Context, job *queue.Job) (done bool, delay time.Duration, err error) {
	var payload queue.PollPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return true, 0, fmt.Errorf("unmarshal payload: %w", err)
	}

	switch job.Type {
	case queue.JobTypeCheckLiveState:
		settled, err := p.live.CheckChannelState(ctx, payload.VideoID)
		return settled, p.cfg.ChannelPollDelay, err
	case queue.JobTypeCheckInput:
		settled, err := p.live.CheckInput(ctx, payload.VideoID)
		return settled, p.cfg.InputPollDelay, err
	case queue.JobTypeFinalizeLiveDelete:
		settled, err := p.live.FinalizeDelete(ctx, payload.VideoID)
		return settled, p.cfg.ChannelPollDelay, err
	case queue.JobTypeCheckJobStatus:
		settled, err := p.checkJobStatus(ctx, payload.VideoID)
		return settled, p.cfg.JobPollDelay, err
	default:
		return true, 0, fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// checkJobStatus reconciles the media state against the transcode job.
func (p *Processor) checkJobStatus(ctx context.Context, videoID uuid.UUID) (settled bool, err error) {
	m, err := p.media.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	// No job id recorded yet: the submit is still writing its metadata,
	// so keep the chain alive and look again on the next poll.
	jobID := m.Metadata[models.MetaConvertJobID]
	if jobID == "" {
		return false, nil
	}
	status, err := p.jobs.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	switch status.Status {
	case cloud.JobStatusProgressing:
		if err := p.media.MarkProcessing(ctx, videoID); err != nil && !errors.Is(err, models.ErrTransitionNotAllowed) {
			return false, err
		}
		if err := p.media.UpdateProgress(ctx, videoID, status.PercentComplete); err != nil {
			return false, err
		}
		if p.publisher != nil {
			p.publisher.Publish(videoID, "progress", map[string]interface{}{
				"video_id":             videoID,
				"job_percent_complete": status.PercentComplete,
			})
		}
		return false, nil

	case cloud.JobStatusComplete:
		if err := p.media.Finish(ctx, videoID, status.DurationMS); err != nil {
			if errors.Is(err, models.ErrTransitionNotAllowed) {
				return true, nil
			}
			return false, err
		}
		if p.publisher != nil {
			p.publisher.Publish(videoID, "state", map[string]interface{}{
				"video_id": videoID,
				"state":    models.MediaFinished,
			})
		}
		return true, nil

	case cloud.JobStatusError:
		if err := p.media.MarkProcessingFailed(ctx, videoID); err != nil && !errors.Is(err, models.ErrTransitionNotAllowed) {
			return false, err
		}
		return true, nil

	default:
		// SUBMITTED and friends: keep polling.
		return false, nil
	}
}

// Run starts the worker loops and blocks until ctx is canceled.
func (p *Processor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		p.promoteLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.consumeLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		p.cutLoop(ctx)
	}()

	wg.Wait()
	p.logger.Info("reconcile processor stopped")
}

func (p *Processor) promoteLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := p.queue.PromoteDue(ctx, now); err != nil && ctx.Err() == nil {
				p.logger.Warn("promote due jobs failed", zap.Error(err))
			}
		}
	}
}

func (p *Processor) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		done, delay, err := p.Process(ctx, job)
		if err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			continue
		}
		if done {
			continue
		}
		if job.Polls >= p.cfg.MaxPollAttempts {
			p.logger.Warn("poll chain exhausted",
				zap.String("job_id", job.ID),
				zap.String("type", string(job.Type)),
				zap.Int("polls", job.Polls))
			continue
		}
		if err := p.queue.Reschedule(ctx, job, delay); err != nil {
			p.logger.Error("reschedule failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

func (p *Processor) cutLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.CutTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.cuts.Sweep(ctx, now)
		}
	}
}

package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/media"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/cloud"
	"github.com/videohub/backend/pkg/queue"
)

type fakeMedia struct {
	m          *models.Media
	processing bool
	failed     bool
	finishedMS int64
	percent    int
}

func (f *fakeMedia) Get(_ context.Context, _ uuid.UUID) (*models.Media, error) {
	if f.m == nil {
		return nil, media.ErrNotFound
	}
	return f.m, nil
}

func (f *fakeMedia) MarkProcessing(_ context.Context, _ uuid.UUID) error {
	if f.m.State != models.MediaQueued {
		return models.ErrTransitionNotAllowed
	}
	f.m.State = models.MediaProcessing
	f.processing = true
	return nil
}

func (f *fakeMedia) UpdateProgress(_ context.Context, _ uuid.UUID, percent int) error {
	f.percent = percent
	return nil
}

func (f *fakeMedia) MarkProcessingFailed(_ context.Context, _ uuid.UUID) error {
	f.m.State = models.MediaProcessingFailed
	f.failed = true
	return nil
}

func (f *fakeMedia) Finish(_ context.Context, _ uuid.UUID, durationMS int64) error {
	f.m.State = models.MediaFinished
	f.finishedMS = durationMS
	return nil
}

type fakeLive struct {
	channelSettled  bool
	inputSettled    bool
	finalizeSettled bool
	calls           map[string]int
}

func newFakeLive() *fakeLive { return &fakeLive{calls: make(map[string]int)} }

func (f *fakeLive) CheckChannelState(_ context.Context, _ uuid.UUID) (bool, error) {
	f.calls["channel"]++
	return f.channelSettled, nil
}

func (f *fakeLive) CheckInput(_ context.Context, _ uuid.UUID) (bool, error) {
	f.calls["input"]++
	return f.inputSettled, nil
}

func (f *fakeLive) FinalizeDelete(_ context.Context, _ uuid.UUID) (bool, error) {
	f.calls["finalize"]++
	return f.finalizeSettled, nil
}

type fakeSweeper struct{ swept int }

func (f *fakeSweeper) Sweep(_ context.Context, _ time.Time) { f.swept++ }

type fakeJobs struct {
	status *cloud.JobStatus
}

func (f *fakeJobs) GetJob(_ context.Context, _ string) (*cloud.JobStatus, error) {
	return f.status, nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(_ uuid.UUID, event string, _ interface{}) {
	f.events = append(f.events, event)
}

type processorFixture struct {
	proc  *Processor
	media *fakeMedia
	live  *fakeLive
	jobs  *fakeJobs
	pub   *fakePublisher
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	fx := &processorFixture{
		media: &fakeMedia{m: &models.Media{
			VideoID:  uuid.New(),
			State:    models.MediaQueued,
			Metadata: map[string]string{models.MetaConvertJobID: "job-1"},
		}},
		live: newFakeLive(),
		jobs: &fakeJobs{status: &cloud.JobStatus{Status: cloud.JobStatusProgressing, PercentComplete: 30}},
		pub:  &fakePublisher{},
	}
	fx.proc = NewProcessor(nil, fx.media, fx.live, &fakeSweeper{}, fx.jobs, fx.pub,
		Config{JobPollDelay: 5 * time.Second, ChannelPollDelay: 10 * time.Second, MaxPollAttempts: 3},
		zap.NewNop())
	return fx
}

func pollJob(t *testing.T, jobType queue.JobType) *queue.Job {
	t.Helper()
	job, err := queue.NewPollJob(jobType, uuid.New())
	require.NoError(t, err)
	return job
}

func TestProcessDispatchesLiveChecks(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.live.channelSettled = true

	done, delay, err := fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckLiveState))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, 10*time.Second, delay)
	assert.Equal(t, 1, fx.live.calls["channel"])

	done, _, err = fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckInput))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, fx.live.calls["input"])

	done, _, err = fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeFinalizeLiveDelete))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 1, fx.live.calls["finalize"])
}

func TestProcessRejectsUnknownType(t *testing.T) {
	fx := newProcessorFixture(t)
	job := pollJob(t, queue.JobType("repair_flux_capacitor"))
	done, _, err := fx.proc.Process(context.Background(), job)
	assert.True(t, done)
	assert.Error(t, err)
}

func TestCheckJobStatusProgressing(t *testing.T) {
	fx := newProcessorFixture(t)

	done, delay, err := fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckJobStatus))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 5*time.Second, delay)
	assert.True(t, fx.media.processing)
	assert.Equal(t, 30, fx.media.percent)
	assert.Equal(t, []string{"progress"}, fx.pub.events)

	// A later progressing poll must not trip on the state already being
	// processing.
	fx.jobs.status.PercentComplete = 60
	done, _, err = fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckJobStatus))
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 60, fx.media.percent)
}

func TestCheckJobStatusComplete(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.media.m.State = models.MediaProcessing
	fx.jobs.status = &cloud.JobStatus{Status: cloud.JobStatusComplete, DurationMS: 61001}

	done, _, err := fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckJobStatus))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, int64(61001), fx.media.finishedMS)
	assert.Contains(t, fx.pub.events, "state")
}

func TestCheckJobStatusError(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.media.m.State = models.MediaProcessing
	fx.jobs.status = &cloud.JobStatus{Status: cloud.JobStatusError}

	done, _, err := fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckJobStatus))
	require.NoError(t, err)
	assert.True(t, done)
	assert.True(t, fx.media.failed)
}

func TestCheckJobStatusMissingMediaSettles(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.media.m = nil

	done, _, err := fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckJobStatus))
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCheckJobStatusNoJobIDKeepsPolling(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.media.m.Metadata = map[string]string{}

	done, _, err := fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckJobStatus))
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCheckJobStatusSubmittedKeepsPolling(t *testing.T) {
	fx := newProcessorFixture(t)
	fx.jobs.status = &cloud.JobStatus{Status: "SUBMITTED"}

	done, _, err := fx.proc.Process(context.Background(), pollJob(t, queue.JobTypeCheckJobStatus))
	require.NoError(t, err)
	assert.False(t, done)
}

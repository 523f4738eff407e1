package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/queue"
)

type fakeStore struct {
	media map[uuid.UUID]*models.Media
}

func newFakeStore() *fakeStore {
	return &fakeStore{media: make(map[uuid.UUID]*models.Media)}
}

func (f *fakeStore) Create(_ context.Context, m *models.Media) error {
	m.ID = uuid.New()
	m.VideoID = uuid.New()
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	cp := *m
	f.media[m.VideoID] = &cp
	return nil
}

func (f *fakeStore) GetByVideoID(_ context.Context, videoID uuid.UUID) (*models.Media, error) {
	m, ok := f.media[videoID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *fakeStore) ListByOrganization(_ context.Context, orgID uuid.UUID, _, _ int) ([]models.Media, error) {
	var out []models.Media
	for _, m := range f.media {
		if m.OrganizationID == orgID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeStore) Transition(_ context.Context, videoID uuid.UUID, target models.MediaState, sources []models.MediaState) (models.MediaState, error) {
	m, ok := f.media[videoID]
	if !ok {
		return "", models.ErrTransitionNotAllowed
	}
	for _, s := range sources {
		if m.State == s {
			prev := m.State
			m.State = target
			return prev, nil
		}
	}
	return "", models.ErrTransitionNotAllowed
}

func (f *fakeStore) Revert(_ context.Context, videoID uuid.UUID, from, to models.MediaState) error {
	m, ok := f.media[videoID]
	if ok && m.State == from {
		m.State = to
	}
	return nil
}

func (f *fakeStore) SetMetadata(_ context.Context, videoID uuid.UUID, key, value string) error {
	m, ok := f.media[videoID]
	if !ok {
		return errors.New("not found")
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
	return nil
}

func (f *fakeStore) DeleteMetadata(_ context.Context, videoID uuid.UUID, key string) error {
	if m, ok := f.media[videoID]; ok {
		delete(m.Metadata, key)
	}
	return nil
}

func (f *fakeStore) ClearMetadata(_ context.Context, videoID uuid.UUID) error {
	if m, ok := f.media[videoID]; ok {
		m.Metadata = make(map[string]string)
	}
	return nil
}

func (f *fakeStore) SetResult(_ context.Context, videoID uuid.UUID, durationSec int, storageBytes int64) error {
	m, ok := f.media[videoID]
	if !ok {
		return errors.New("not found")
	}
	m.Duration = durationSec
	m.Storage = storageBytes
	return nil
}

func (f *fakeStore) Delete(_ context.Context, videoID uuid.UUID) error {
	delete(f.media, videoID)
	return nil
}

type fakeOrgs struct {
	org *models.Organization
}

func (f *fakeOrgs) GetByID(_ context.Context, _ uuid.UUID) (*models.Organization, error) {
	return f.org, nil
}

type fakeObjects struct {
	deleted []string
	size    int64
}

func (f *fakeObjects) PresignUpload(_ context.Context, bucket, key, _ string) (string, error) {
	return "https://" + bucket + ".s3.amazonaws.com/" + key + "?sig=x", nil
}

func (f *fakeObjects) DeletePrefix(_ context.Context, _, prefix string) error {
	f.deleted = append(f.deleted, prefix)
	return nil
}

func (f *fakeObjects) SizeOfPrefix(_ context.Context, _, _ string) (int64, error) {
	return f.size, nil
}

type fakeTranscoder struct {
	jobID   string
	err     error
	submits int
}

func (f *fakeTranscoder) SubmitJob(_ context.Context, _, _, _ string) (string, error) {
	f.submits++
	if f.err != nil {
		return "", f.err
	}
	return f.jobID, nil
}

type fakeCDN struct {
	invalidated [][]string
}

func (f *fakeCDN) CreateInvalidation(_ context.Context, _ string, paths []string) error {
	f.invalidated = append(f.invalidated, paths)
	return nil
}

type fakeScheduler struct {
	polls []queue.JobType
}

func (f *fakeScheduler) SchedulePoll(_ context.Context, jobType queue.JobType, _ uuid.UUID, _ time.Duration) error {
	f.polls = append(f.polls, jobType)
	return nil
}

type mediaFixture struct {
	svc        *Service
	store      *fakeStore
	objects    *fakeObjects
	transcoder *fakeTranscoder
	cdn        *fakeCDN
	scheduler  *fakeScheduler
	org        *models.Organization
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()
	org := &models.Organization{
		ID:            uuid.New(),
		Name:          "acme",
		BucketName:    "acme-media",
		UploadEnabled: true,
		CFID:          "E123",
		CFDomain:      "d111.cloudfront.net",
	}
	store := newFakeStore()
	objects := &fakeObjects{size: 4096}
	transcoder := &fakeTranscoder{jobID: "job-1"}
	cdn := &fakeCDN{}
	scheduler := &fakeScheduler{}
	svc := NewService(store, &fakeOrgs{org: org}, objects, transcoder, cdn, scheduler,
		5*time.Second, zap.NewNop())
	return &mediaFixture{svc: svc, store: store, objects: objects,
		transcoder: transcoder, cdn: cdn, scheduler: scheduler, org: org}
}

func (fx *mediaFixture) create(t *testing.T) *models.Media {
	t.Helper()
	res, err := fx.svc.Create(context.Background(), fx.org.ID, CreateInput{
		Name:      "clip",
		MediaType: models.MediaTypeVideo,
		Protocol:  models.ProtocolHLS,
	})
	require.NoError(t, err)
	return res.Media
}

func TestCreateReturnsUploadGrant(t *testing.T) {
	fx := newMediaFixture(t)
	res, err := fx.svc.Create(context.Background(), fx.org.ID, CreateInput{
		Name:      "clip",
		MediaType: models.MediaTypeVideo,
		Protocol:  models.ProtocolHLS,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MediaWaitingFile, res.Media.State)
	assert.Contains(t, res.UploadURL, res.Media.VideoID.String()+"/input.mp4")
}

func TestCreateRejectsDisabledUploads(t *testing.T) {
	fx := newMediaFixture(t)
	fx.org.UploadEnabled = false
	_, err := fx.svc.Create(context.Background(), fx.org.ID, CreateInput{
		Name:      "clip",
		MediaType: models.MediaTypeVideo,
		Protocol:  models.ProtocolHLS,
	})
	assert.ErrorIs(t, err, ErrUploadsOff)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	fx := newMediaFixture(t)
	_, err := fx.svc.Create(context.Background(), fx.org.ID, CreateInput{
		Name:      "clip",
		MediaType: "image",
		Protocol:  models.ProtocolHLS,
	})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestQueueSubmitsJobAndSchedulesPoll(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)

	out, err := fx.svc.Queue(context.Background(), m.VideoID)
	require.NoError(t, err)
	assert.Equal(t, models.MediaQueued, out.State)
	assert.Equal(t, "job-1", out.Metadata[models.MetaConvertJobID])
	assert.Equal(t, []queue.JobType{queue.JobTypeCheckJobStatus}, fx.scheduler.polls)
}

func TestQueueRejectsWrongState(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)
	fx.store.media[m.VideoID].State = models.MediaProcessing

	_, err := fx.svc.Queue(context.Background(), m.VideoID)
	assert.ErrorIs(t, err, models.ErrTransitionNotAllowed)
	assert.Zero(t, fx.transcoder.submits)
}

func TestQueueSubmitFailureFallsBack(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)
	fx.transcoder.err = errors.New("boom")

	_, err := fx.svc.Queue(context.Background(), m.VideoID)
	require.Error(t, err)
	assert.Equal(t, models.MediaQueuingFailed, fx.store.media[m.VideoID].State)
	assert.Empty(t, fx.scheduler.polls)
}

func TestFinishRoundsDurationUpAndRecordsStorage(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)
	fx.store.media[m.VideoID].State = models.MediaProcessing

	require.NoError(t, fx.svc.Finish(context.Background(), m.VideoID, 61001))

	got := fx.store.media[m.VideoID]
	assert.Equal(t, models.MediaFinished, got.State)
	assert.Equal(t, 62, got.Duration)
	assert.Equal(t, int64(4096), got.Storage)
}

func TestFinishClearsProgressMetadata(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)

	_, err := fx.svc.Queue(context.Background(), m.VideoID)
	require.NoError(t, err)
	require.NoError(t, fx.svc.MarkProcessing(context.Background(), m.VideoID))
	require.NoError(t, fx.svc.UpdateProgress(context.Background(), m.VideoID, 40))

	require.NoError(t, fx.svc.Finish(context.Background(), m.VideoID, 61001))

	got := fx.store.media[m.VideoID]
	assert.Equal(t, models.MediaFinished, got.State)
	assert.NotContains(t, got.Metadata, models.MetaJobPercent)
	assert.Equal(t, "job-1", got.Metadata[models.MetaConvertJobID])
}

func TestMarkQueueFailedOnlyFromWaitingFile(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)

	out, err := fx.svc.MarkQueueFailed(context.Background(), m.VideoID)
	require.NoError(t, err)
	assert.Equal(t, models.MediaQueuingFailed, out.State)

	fx.store.media[m.VideoID].State = models.MediaQueued
	_, err = fx.svc.MarkQueueFailed(context.Background(), m.VideoID)
	assert.ErrorIs(t, err, models.ErrTransitionNotAllowed)
	assert.Equal(t, models.MediaQueued, fx.store.media[m.VideoID].State)
}

func TestReprocessCleansOutputAndResubmits(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)
	fx.store.media[m.VideoID].State = models.MediaProcessingFailed
	fx.store.media[m.VideoID].Metadata = map[string]string{models.MetaConvertJobID: "old"}
	fx.transcoder.jobID = "job-2"

	out, err := fx.svc.Reprocess(context.Background(), m.VideoID)
	require.NoError(t, err)
	assert.Equal(t, models.MediaQueued, out.State)
	assert.Equal(t, "job-2", out.Metadata[models.MetaConvertJobID])
	assert.ElementsMatch(t, []string{m.VideoID.String() + "/hls/", m.VideoID.String() + "/thumbs/"}, fx.objects.deleted)
	require.Len(t, fx.cdn.invalidated, 1)
	assert.Contains(t, fx.cdn.invalidated[0], "/"+m.VideoID.String()+"/hls/*")
}

func TestDeleteRemovesObjectsAndRecord(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)

	require.NoError(t, fx.svc.Delete(context.Background(), m.VideoID))
	assert.Contains(t, fx.objects.deleted, m.VideoID.String()+"/")
	_, err := fx.svc.Get(context.Background(), m.VideoID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessingLifecycle(t *testing.T) {
	fx := newMediaFixture(t)
	m := fx.create(t)
	fx.store.media[m.VideoID].State = models.MediaQueued

	require.NoError(t, fx.svc.MarkProcessing(context.Background(), m.VideoID))
	assert.Equal(t, models.MediaProcessing, fx.store.media[m.VideoID].State)

	require.NoError(t, fx.svc.UpdateProgress(context.Background(), m.VideoID, 40))
	assert.Equal(t, "40", fx.store.media[m.VideoID].Metadata[models.MetaJobPercent])

	require.NoError(t, fx.svc.MarkProcessingFailed(context.Background(), m.VideoID))
	assert.Equal(t, models.MediaProcessingFailed, fx.store.media[m.VideoID].State)
}

package live

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/cloud"
	"github.com/videohub/backend/pkg/queue"
)

type fakeStore struct {
	lives map[uuid.UUID]*models.LiveVideo
}

func newFakeStore() *fakeStore {
	return &fakeStore{lives: make(map[uuid.UUID]*models.LiveVideo)}
}

func (f *fakeStore) Create(_ context.Context, l *models.LiveVideo) error {
	l.ID = uuid.New()
	l.VideoID = uuid.New()
	cp := *l
	f.lives[l.VideoID] = &cp
	return nil
}

func (f *fakeStore) GetByVideoID(_ context.Context, videoID uuid.UUID) (*models.LiveVideo, error) {
	l, ok := f.lives[videoID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (f *fakeStore) GetByChannelARN(_ context.Context, arn string) (*models.LiveVideo, error) {
	for _, l := range f.lives {
		if l.MLChannelARN == arn {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListByOrganization(_ context.Context, orgID uuid.UUID) ([]models.LiveVideo, error) {
	var out []models.LiveVideo
	for _, l := range f.lives {
		if l.OrganizationID == orgID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeStore) Transition(_ context.Context, videoID uuid.UUID, target models.LiveState, sources []models.LiveState) (models.LiveState, error) {
	l, ok := f.lives[videoID]
	if !ok {
		return "", models.ErrTransitionNotAllowed
	}
	for _, s := range sources {
		if l.State == s {
			prev := l.State
			l.State = target
			return prev, nil
		}
	}
	return "", models.ErrTransitionNotAllowed
}

func (f *fakeStore) Revert(_ context.Context, videoID uuid.UUID, from, to models.LiveState) error {
	l, ok := f.lives[videoID]
	if ok && l.State == from {
		l.State = to
	}
	return nil
}

func (f *fakeStore) SetChannelResources(_ context.Context, videoID uuid.UUID, inputID, inputURL, channelARN string) error {
	l := f.lives[videoID]
	l.MLInputID, l.MLInputURL, l.MLChannelARN = inputID, inputURL, channelARN
	return nil
}

func (f *fakeStore) SetTopicARN(_ context.Context, videoID uuid.UUID, topicARN string) error {
	f.lives[videoID].SNSTopicARN = topicARN
	return nil
}

func (f *fakeStore) SetDistribution(_ context.Context, videoID uuid.UUID, cfID, cfDomain string) error {
	l := f.lives[videoID]
	l.CFID, l.CFDomain = cfID, cfDomain
	return nil
}

func (f *fakeStore) SetInputState(_ context.Context, videoID uuid.UUID, alerts []string) error {
	f.lives[videoID].InputState = alerts
	return nil
}

func (f *fakeStore) SetGeoRestriction(_ context.Context, videoID uuid.UUID, geoType models.GeoType, countries []string) error {
	l := f.lives[videoID]
	l.GeolocationType, l.GeolocationCountries = geoType, countries
	return nil
}

func (f *fakeStore) Delete(_ context.Context, videoID uuid.UUID) error {
	delete(f.lives, videoID)
	return nil
}

type fakeOrgs struct {
	org *models.Organization
}

func (f *fakeOrgs) GetByID(_ context.Context, _ uuid.UUID) (*models.Organization, error) {
	return f.org, nil
}

type fakeChannels struct {
	state        string
	describeErr  error
	startErr     error
	stopErr      error
	started      []string
	stopped      []string
	deletedChans []string
	deletedIns   []string
}

func (f *fakeChannels) CreateInput(_ context.Context, videoID string) (string, string, error) {
	return "in-1", "rtmp://ingest/live/" + videoID, nil
}

func (f *fakeChannels) CreateChannel(_ context.Context, _, _, _, _ string) (string, error) {
	return "arn:aws:medialive:us-east-1:123:channel:chan-1", nil
}

func (f *fakeChannels) StartChannel(_ context.Context, id string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, id)
	return nil
}

func (f *fakeChannels) StopChannel(_ context.Context, id string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeChannels) DescribeChannel(_ context.Context, _ string) (*cloud.ChannelStatus, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &cloud.ChannelStatus{State: f.state}, nil
}

func (f *fakeChannels) DeleteChannel(_ context.Context, id string) error {
	f.deletedChans = append(f.deletedChans, id)
	return nil
}

func (f *fakeChannels) DeleteInput(_ context.Context, id string) error {
	f.deletedIns = append(f.deletedIns, id)
	return nil
}

type fakeCDN struct {
	disabled []string
	deleted  []string
	geo      string
}

func (f *fakeCDN) CreateDistribution(_ context.Context, _, _ string, _, _ int64) (string, string, error) {
	return "E999", "d222.cloudfront.net", nil
}

func (f *fakeCDN) UpdateGeoRestriction(_ context.Context, _, geoType string, _ []string) error {
	f.geo = geoType
	return nil
}

func (f *fakeCDN) DisableDistribution(_ context.Context, id string) error {
	f.disabled = append(f.disabled, id)
	return nil
}

func (f *fakeCDN) DeleteDistribution(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeRules struct {
	put     []string
	removed []string
	deleted []string
}

func (f *fakeRules) PutAlertRule(_ context.Context, name, _ string) error {
	f.put = append(f.put, name)
	return nil
}

func (f *fakeRules) DeleteAlertRule(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeRules) AddTopicTarget(_ context.Context, _, _, _ string) error { return nil }

func (f *fakeRules) RemoveTopicTarget(_ context.Context, rule, _ string) error {
	f.removed = append(f.removed, rule)
	return nil
}

type fakeTopics struct {
	created      []string
	deleted      []string
	subscribed   []string
	unsubscribed []string
}

func (f *fakeTopics) CreateTopic(_ context.Context, name string) (string, error) {
	f.created = append(f.created, name)
	return "arn:aws:sns:us-east-1:123:" + name, nil
}

func (f *fakeTopics) DeleteTopic(_ context.Context, arn string) error {
	f.deleted = append(f.deleted, arn)
	return nil
}

func (f *fakeTopics) Subscribe(_ context.Context, _, endpoint string) (string, error) {
	f.subscribed = append(f.subscribed, endpoint)
	return "sub-arn", nil
}

func (f *fakeTopics) UnsubscribeAll(_ context.Context, arn string) error {
	f.unsubscribed = append(f.unsubscribed, arn)
	return nil
}

type fakeLogs struct {
	connected bool
}

func (f *fakeLogs) HasRecentConnection(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return f.connected, nil
}

type fakeObjects struct {
	deleted []string
}

func (f *fakeObjects) DeletePrefix(_ context.Context, _, prefix string) error {
	f.deleted = append(f.deleted, prefix)
	return nil
}

type fakeScheduler struct {
	polls []queue.JobType
}

func (f *fakeScheduler) SchedulePoll(_ context.Context, jobType queue.JobType, _ uuid.UUID, _ time.Duration) error {
	f.polls = append(f.polls, jobType)
	return nil
}

type fakePublisher struct {
	states []models.LiveState
}

func (f *fakePublisher) Publish(_ uuid.UUID, event string, payload interface{}) {
	if event != "state" {
		return
	}
	if body, ok := payload.(map[string]interface{}); ok {
		if st, ok := body["state"].(models.LiveState); ok {
			f.states = append(f.states, st)
		}
	}
}

type liveFixture struct {
	svc       *Service
	store     *fakeStore
	channels  *fakeChannels
	cdn       *fakeCDN
	rules     *fakeRules
	topics    *fakeTopics
	logs      *fakeLogs
	objects   *fakeObjects
	scheduler *fakeScheduler
	org       *models.Organization
}

func newLiveFixture(t *testing.T) *liveFixture {
	t.Helper()
	org := &models.Organization{ID: uuid.New(), Name: "acme", BucketName: "acme-media"}
	fx := &liveFixture{
		store:     newFakeStore(),
		channels:  &fakeChannels{state: "IDLE"},
		cdn:       &fakeCDN{},
		rules:     &fakeRules{},
		topics:    &fakeTopics{},
		logs:      &fakeLogs{},
		objects:   &fakeObjects{},
		scheduler: &fakeScheduler{},
		org:       org,
	}
	fx.svc = NewService(fx.store, &fakeOrgs{org: org}, fx.channels, fx.cdn,
		fx.rules, fx.topics, fx.logs, fx.objects, fx.scheduler,
		Config{NotifyURL: "https://api.example.com/notify", ChannelPollDelay: time.Second, InputPollDelay: time.Second},
		zap.NewNop())
	return fx
}

func (fx *liveFixture) create(t *testing.T) *models.LiveVideo {
	t.Helper()
	l, err := fx.svc.Create(context.Background(), fx.org.ID, CreateInput{Name: "event"})
	require.NoError(t, err)
	return l
}

func TestCreateProvisionsResources(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)

	assert.Equal(t, models.LiveOff, l.State)
	assert.Equal(t, "in-1", l.MLInputID)
	assert.Equal(t, "arn:aws:medialive:us-east-1:123:channel:chan-1", l.MLChannelARN)
	assert.Equal(t, "chan-1", l.MLChannelID())
	assert.NotEmpty(t, l.SNSTopicARN)
	assert.Equal(t, "E999", l.CFID)
	assert.Equal(t, []string{l.VideoID.String()}, fx.rules.put)
	assert.Equal(t, []string{"https://api.example.com/notify"}, fx.topics.subscribed)
}

func TestStartTransitionsAndStartsChannel(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)

	out, err := fx.svc.Start(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.Equal(t, models.LiveStarting, out.State)
	assert.Equal(t, []string{"chan-1"}, fx.channels.started)
	assert.Equal(t, []queue.JobType{queue.JobTypeCheckLiveState}, fx.scheduler.polls)
}

func TestStartIsIdempotentWhileStarting(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveStarting

	out, err := fx.svc.Start(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.Equal(t, models.LiveStarting, out.State)
	assert.Empty(t, fx.channels.started)
}

func TestStartRevertsWhenChannelMissing(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.channels.startErr = cloud.ErrChannelNotFound

	_, err := fx.svc.Start(context.Background(), l.VideoID)
	assert.ErrorIs(t, err, cloud.ErrChannelNotFound)
	assert.Equal(t, models.LiveOff, fx.store.lives[l.VideoID].State)
	assert.Empty(t, fx.scheduler.polls)
}

func TestTransitionsPublishToMonitor(t *testing.T) {
	fx := newLiveFixture(t)
	pub := &fakePublisher{}
	fx.svc.SetPublisher(pub)
	l := fx.create(t)

	_, err := fx.svc.Start(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.Equal(t, []models.LiveState{models.LiveStarting}, pub.states)

	fx.channels.state = "RUNNING"
	settled, err := fx.svc.CheckChannelState(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, []models.LiveState{models.LiveStarting, models.LiveWaitingInput}, pub.states)
}

func TestStartFailurePublishesRevertedState(t *testing.T) {
	fx := newLiveFixture(t)
	pub := &fakePublisher{}
	fx.svc.SetPublisher(pub)
	l := fx.create(t)
	fx.channels.startErr = cloud.ErrChannelNotFound

	_, err := fx.svc.Start(context.Background(), l.VideoID)
	require.Error(t, err)
	assert.Equal(t, []models.LiveState{models.LiveStarting, models.LiveOff}, pub.states)
}

func TestStopFromOn(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveOn

	out, err := fx.svc.Stop(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.Equal(t, models.LiveStopping, out.State)
	assert.Equal(t, []string{"chan-1"}, fx.channels.stopped)
}

func TestCheckChannelStateStartingToWaitingInput(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveStarting
	fx.channels.state = "RUNNING"

	settled, err := fx.svc.CheckChannelState(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, models.LiveWaitingInput, fx.store.lives[l.VideoID].State)
	assert.Equal(t, []queue.JobType{queue.JobTypeCheckInput}, fx.scheduler.polls)
}

func TestCheckChannelStateUnsettledWhileStarting(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveStarting
	fx.channels.state = "STARTING"

	settled, err := fx.svc.CheckChannelState(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.False(t, settled)
}

func TestCheckChannelStateStoppingToOff(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveStopping
	fx.store.lives[l.VideoID].InputState = []string{"Video Not Detected"}
	fx.channels.state = "IDLE"

	settled, err := fx.svc.CheckChannelState(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.True(t, settled)
	got := fx.store.lives[l.VideoID]
	assert.Equal(t, models.LiveOff, got.State)
	assert.Empty(t, got.InputState)
	assert.Equal(t, []string{"live/" + l.VideoID.String() + "/"}, fx.objects.deleted)
}

func TestCheckInputDetectsConnection(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveWaitingInput

	settled, err := fx.svc.CheckInput(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.False(t, settled)

	fx.logs.connected = true
	settled, err = fx.svc.CheckInput(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, models.LiveOn, fx.store.lives[l.VideoID].State)
}

func TestDeleteRequiresOff(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveOn

	err := fx.svc.Delete(context.Background(), l.VideoID)
	assert.ErrorIs(t, err, models.ErrTransitionNotAllowed)
}

func TestDeleteTearsDownAndSchedulesFinalize(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)

	require.NoError(t, fx.svc.Delete(context.Background(), l.VideoID))
	assert.Equal(t, models.LiveDeleting, fx.store.lives[l.VideoID].State)
	assert.Equal(t, []string{"chan-1"}, fx.channels.deletedChans)
	assert.Equal(t, []string{l.VideoID.String()}, fx.rules.deleted)
	assert.Len(t, fx.topics.unsubscribed, 1)
	assert.Len(t, fx.topics.deleted, 1)
	assert.Equal(t, []string{"E999"}, fx.cdn.disabled)
	assert.Equal(t, []queue.JobType{queue.JobTypeFinalizeLiveDelete}, fx.scheduler.polls)
}

func TestFinalizeDeleteWaitsForChannel(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveDeleting
	fx.channels.state = "DELETING"

	settled, err := fx.svc.FinalizeDelete(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.False(t, settled)

	fx.channels.describeErr = cloud.ErrChannelNotFound
	settled, err = fx.svc.FinalizeDelete(context.Background(), l.VideoID)
	require.NoError(t, err)
	assert.True(t, settled)
	assert.Equal(t, []string{"in-1"}, fx.channels.deletedIns)
	assert.Equal(t, []string{"E999"}, fx.cdn.deleted)
	assert.Empty(t, fx.store.lives)
}

func TestUpdateGeoRestriction(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)

	_, err := fx.svc.UpdateGeoRestriction(context.Background(), l.VideoID, "county", nil)
	assert.ErrorIs(t, err, ErrInvalidGeo)

	out, err := fx.svc.UpdateGeoRestriction(context.Background(), l.VideoID, models.GeoWhitelist, []string{"BR", "US"})
	require.NoError(t, err)
	assert.Equal(t, models.GeoWhitelist, out.GeolocationType)
	assert.Equal(t, "whitelist", fx.cdn.geo)
}

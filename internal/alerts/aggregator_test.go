package alerts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
)

type fakeLiveStore struct {
	live   *models.LiveVideo
	writes int
}

func (f *fakeLiveStore) GetByChannelARN(_ context.Context, arn string) (*models.LiveVideo, error) {
	if f.live != nil && f.live.MLChannelARN == arn {
		cp := *f.live
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeLiveStore) SetInputState(_ context.Context, _ uuid.UUID, alerts []string) error {
	f.live.InputState = alerts
	f.writes++
	return nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(_ uuid.UUID, event string, _ interface{}) {
	f.events = append(f.events, event)
}

const chanARN = "arn:aws:medialive:us-east-1:123:channel:chan-1"

func newAggFixture() (*Aggregator, *fakeLiveStore, *fakePublisher) {
	store := &fakeLiveStore{live: &models.LiveVideo{
		VideoID:      uuid.New(),
		MLChannelARN: chanARN,
		State:        models.LiveOn,
	}}
	pub := &fakePublisher{}
	return NewAggregator(store, pub, zap.NewNop()), store, pub
}

func TestHandleAlertSetAddsOnce(t *testing.T) {
	agg, store, pub := newAggFixture()

	alert := Alert{AlarmState: AlarmSet, AlertType: "Video Not Detected", ChannelARN: chanARN}
	require.NoError(t, agg.HandleAlert(context.Background(), alert))
	assert.Equal(t, []string{"Video Not Detected"}, store.live.InputState)
	assert.Equal(t, []string{"input_state"}, pub.events)

	// Duplicate SET is a no-op.
	require.NoError(t, agg.HandleAlert(context.Background(), alert))
	assert.Equal(t, 1, store.writes)
}

func TestHandleAlertClearedRemoves(t *testing.T) {
	agg, store, _ := newAggFixture()
	store.live.InputState = []string{"Video Not Detected", "Audio Not Detected"}

	alert := Alert{AlarmState: AlarmCleared, AlertType: "Video Not Detected", ChannelARN: chanARN}
	require.NoError(t, agg.HandleAlert(context.Background(), alert))
	assert.Equal(t, []string{"Audio Not Detected"}, store.live.InputState)

	// Clearing an absent alert is a no-op.
	require.NoError(t, agg.HandleAlert(context.Background(), alert))
	assert.Equal(t, 1, store.writes)
}

func TestHandleAlertUnknownChannelDropped(t *testing.T) {
	agg, store, pub := newAggFixture()

	alert := Alert{AlarmState: AlarmSet, AlertType: "Video Not Detected", ChannelARN: "arn:aws:medialive:us-east-1:123:channel:gone"}
	require.NoError(t, agg.HandleAlert(context.Background(), alert))
	assert.Zero(t, store.writes)
	assert.Empty(t, pub.events)
}

func TestHandleAlertPreservesInsertionOrder(t *testing.T) {
	agg, store, _ := newAggFixture()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, agg.HandleAlert(context.Background(), Alert{AlarmState: AlarmSet, AlertType: name, ChannelARN: chanARN}))
	}
	require.NoError(t, agg.HandleAlert(context.Background(), Alert{AlarmState: AlarmCleared, AlertType: "b", ChannelARN: chanARN}))
	assert.Equal(t, []string{"a", "c"}, store.live.InputState)
}

func TestHandleAlertIgnoresUnknownAlarmState(t *testing.T) {
	agg, store, _ := newAggFixture()
	require.NoError(t, agg.HandleAlert(context.Background(), Alert{AlarmState: "FLAPPING", AlertType: "x", ChannelARN: chanARN}))
	assert.Zero(t, store.writes)
}

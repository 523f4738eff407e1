package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMedia(t *testing.T) {
	cases := []struct {
		name    string
		current MediaState
		event   MediaEvent
		want    MediaState
		ok      bool
	}{
		{"queue from waiting_file", MediaWaitingFile, MediaEventQueue, MediaQueued, true},
		{"queue_fail from waiting_file", MediaWaitingFile, MediaEventQueueFail, MediaQueuingFailed, true},
		{"process from queued", MediaQueued, MediaEventProcess, MediaProcessing, true},
		{"process_fail from processing", MediaProcessing, MediaEventProcessFail, MediaProcessingFailed, true},
		{"finish from processing", MediaProcessing, MediaEventFinish, MediaFinished, true},
		{"finish skips processing", MediaQueued, MediaEventFinish, MediaFinished, true},
		{"reprocess from finished", MediaFinished, MediaEventReprocess, MediaQueued, true},
		{"reprocess from processing_failed", MediaProcessingFailed, MediaEventReprocess, MediaQueued, true},
		{"reprocess from queuing_failed", MediaQueuingFailed, MediaEventReprocess, MediaQueued, true},
		{"reprocess from failed", MediaFailed, MediaEventReprocess, MediaQueued, true},
		{"queue from finished rejected", MediaFinished, MediaEventQueue, MediaFinished, false},
		{"finish from waiting_file rejected", MediaWaitingFile, MediaEventFinish, MediaWaitingFile, false},
		{"reprocess while processing rejected", MediaProcessing, MediaEventReprocess, MediaProcessing, false},
		{"unknown event rejected", MediaQueued, MediaEvent("explode"), MediaQueued, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyMedia(tc.current, tc.event)
			if tc.ok {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrTransitionNotAllowed)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestApplyLive(t *testing.T) {
	cases := []struct {
		name    string
		current LiveState
		event   LiveEvent
		want    LiveState
		ok      bool
	}{
		{"start from off", LiveOff, LiveEventStart, LiveStarting, true},
		{"restart while stopping", LiveStopping, LiveEventStart, LiveStarting, true},
		{"wait_input from starting", LiveStarting, LiveEventWait, LiveWaitingInput, true},
		{"on from waiting_input", LiveWaitingInput, LiveEventOn, LiveOn, true},
		{"stop from on", LiveOn, LiveEventStop, LiveStopping, true},
		{"stop while starting", LiveStarting, LiveEventStop, LiveStopping, true},
		{"stop while waiting_input", LiveWaitingInput, LiveEventStop, LiveStopping, true},
		{"off from stopping", LiveStopping, LiveEventOff, LiveOff, true},
		{"delete from off", LiveOff, LiveEventDelete, LiveDeleting, true},
		{"start while on rejected", LiveOn, LiveEventStart, LiveOn, false},
		{"stop while off rejected", LiveOff, LiveEventStop, LiveOff, false},
		{"delete while on rejected", LiveOn, LiveEventDelete, LiveOn, false},
		{"on from starting rejected", LiveStarting, LiveEventOn, LiveStarting, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyLive(tc.current, tc.event)
			if tc.ok {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrTransitionNotAllowed)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestApplyCut(t *testing.T) {
	got, err := ApplyCut(CutScheduled, CutEventExecute)
	require.NoError(t, err)
	assert.Equal(t, CutExecuting, got)

	got, err = ApplyCut(CutExecuting, CutEventPerform)
	require.NoError(t, err)
	assert.Equal(t, CutPerformed, got)

	_, err = ApplyCut(CutPerformed, CutEventExecute)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)

	_, err = ApplyCut(CutScheduled, CutEventPerform)
	assert.ErrorIs(t, err, ErrTransitionNotAllowed)
}

func TestMediaEdgeExposesSources(t *testing.T) {
	sources, target, ok := MediaEdge(MediaEventReprocess)
	require.True(t, ok)
	assert.Equal(t, MediaQueued, target)
	assert.ElementsMatch(t, []MediaState{MediaFinished, MediaProcessingFailed, MediaFailed, MediaQueuingFailed}, sources)

	_, _, ok = MediaEdge(MediaEvent("nope"))
	assert.False(t, ok)
}

func TestMLChannelID(t *testing.T) {
	l := &LiveVideo{MLChannelARN: "arn:aws:medialive:us-east-1:123456789012:channel:8765432"}
	assert.Equal(t, "8765432", l.MLChannelID())
}

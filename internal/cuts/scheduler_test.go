package cuts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/videohub/backend/internal/models"
)

type fakeCounter struct {
	intervals map[uuid.UUID][2]time.Time
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{intervals: make(map[uuid.UUID][2]time.Time)}
}

func (f *fakeCounter) add(initial, final time.Time) uuid.UUID {
	id := uuid.New()
	f.intervals[id] = [2]time.Time{initial, final}
	return id
}

func (f *fakeCounter) CountOverlapping(_ context.Context, _ uuid.UUID, initial, final time.Time, exclude uuid.UUID) (int, error) {
	n := 0
	for id, iv := range f.intervals {
		if id == exclude {
			continue
		}
		if iv[0].Before(final) && iv[1].After(initial) {
			n++
		}
	}
	return n, nil
}

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestTruncateMinuteDropsSeconds(t *testing.T) {
	in := time.Date(2026, 3, 10, 15, 4, 59, 123456789, time.UTC)
	assert.Equal(t, at(15, 4), TruncateMinute(in))
}

func TestValidateIntervalRejectsEmptyInterval(t *testing.T) {
	counter := newFakeCounter()
	liveID := uuid.New()

	// Distinct instants in the same minute collapse to an empty interval.
	start := at(10, 0).Add(10 * time.Second)
	end := at(10, 0).Add(40 * time.Second)
	_, _, err := ValidateInterval(context.Background(), counter, liveID,
		start, end, uuid.Nil, models.CutScheduled, at(9, 0))
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, _, err = ValidateInterval(context.Background(), counter, liveID,
		at(10, 30), at(10, 0), uuid.Nil, models.CutScheduled, at(9, 0))
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestValidateIntervalRejectsPastStartOnlyWhenScheduled(t *testing.T) {
	counter := newFakeCounter()
	liveID := uuid.New()

	_, _, err := ValidateInterval(context.Background(), counter, liveID,
		at(10, 0), at(10, 30), uuid.Nil, models.CutScheduled, at(10, 5))
	assert.ErrorIs(t, err, ErrPastStart)

	_, _, err = ValidateInterval(context.Background(), counter, liveID,
		at(10, 0), at(10, 30), uuid.Nil, models.CutExecuting, at(10, 5))
	assert.NoError(t, err)
}

func TestValidateIntervalAllowsStartAtCurrentMinute(t *testing.T) {
	counter := newFakeCounter()
	_, _, err := ValidateInterval(context.Background(), counter, uuid.New(),
		at(10, 0).Add(5*time.Second), at(10, 30), uuid.Nil, models.CutScheduled, at(10, 0).Add(45*time.Second))
	assert.NoError(t, err)
}

func TestValidateIntervalOverlap(t *testing.T) {
	counter := newFakeCounter()
	liveID := uuid.New()
	counter.add(at(10, 0), at(11, 0))

	_, _, err := ValidateInterval(context.Background(), counter, liveID,
		at(10, 30), at(11, 30), uuid.Nil, models.CutScheduled, at(9, 0))
	assert.ErrorIs(t, err, ErrCutOverlap)

	// Half-open: a cut may begin exactly when another ends.
	initial, final, err := ValidateInterval(context.Background(), counter, liveID,
		at(11, 0), at(11, 30), uuid.Nil, models.CutScheduled, at(9, 0))
	require.NoError(t, err)
	assert.Equal(t, at(11, 0), initial)
	assert.Equal(t, at(11, 30), final)
}

func TestValidateIntervalExcludesSelf(t *testing.T) {
	counter := newFakeCounter()
	liveID := uuid.New()
	self := counter.add(at(10, 0), at(11, 0))

	// Rescheduling within its own window is not a self-conflict.
	_, _, err := ValidateInterval(context.Background(), counter, liveID,
		at(10, 15), at(10, 45), self, models.CutScheduled, at(9, 0))
	assert.NoError(t, err)
}

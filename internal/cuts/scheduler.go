package cuts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/videohub/backend/internal/models"
)

var (
	ErrInvalidInterval = errors.New("final time must be after initial time")
	ErrPastStart       = errors.New("initial time is in the past")
	ErrCutOverlap      = errors.New("interval overlaps an existing cut")
)

// OverlapCounter counts cuts on a live video whose interval intersects
// [initial, final), excluding one cut by id.
type OverlapCounter interface {
	CountOverlapping(ctx context.Context, liveID uuid.UUID, initial, final time.Time, exclude uuid.UUID) (int, error)
}

// TruncateMinute drops seconds and finer. Cut intervals are
// minute-granular so equal wall-clock minutes compare equal.
func TruncateMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

// ValidateInterval checks a cut's interval against the schedule.
// Intervals are half-open [initial, final): a cut ending at minute M
// does not overlap one starting at M. The past-start check applies only
// while the cut is still scheduled; an executing cut legitimately has
// its start in the past.
func ValidateInterval(ctx context.Context, counter OverlapCounter, liveID uuid.UUID,
	initial, final time.Time, exclude uuid.UUID, state models.CutState, now time.Time) (time.Time, time.Time, error) {

	initial = TruncateMinute(initial)
	final = TruncateMinute(final)

	if !final.After(initial) {
		return initial, final, ErrInvalidInterval
	}
	if state == models.CutScheduled && initial.Before(TruncateMinute(now)) {
		return initial, final, ErrPastStart
	}
	n, err := counter.CountOverlapping(ctx, liveID, initial, final, exclude)
	if err != nil {
		return initial, final, err
	}
	if n > 0 {
		return initial, final, ErrCutOverlap
	}
	return initial, final, nil
}

package alerts

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/videohub/backend/internal/models"
)

// Alarm states carried by channel alert events.
const (
	AlarmSet     = "SET"
	AlarmCleared = "CLEARED"
)

// Alert is a channel health event routed from the live channel's alert
// rule into the notification topic.
type Alert struct {
	AlarmState string `json:"alarm_state"`
	AlertType  string `json:"alert_type"`
	ChannelARN string `json:"channel_arn"`
}

// LiveStore resolves and updates the live video an alert belongs to.
type LiveStore interface {
	GetByChannelARN(ctx context.Context, channelARN string) (*models.LiveVideo, error)
	SetInputState(ctx context.Context, videoID uuid.UUID, alerts []string) error
}

// Publisher pushes input-state changes to connected monitors.
type Publisher interface {
	Publish(videoID uuid.UUID, event string, payload interface{})
}

// Aggregator folds channel alerts into each live video's active alert
// set. A SET adds the alert type, a CLEARED removes it; anything else
// is ignored.
type Aggregator struct {
	store     LiveStore
	publisher Publisher
	logger    *zap.Logger
}

// NewAggregator creates an alert aggregator.
func NewAggregator(store LiveStore, publisher Publisher, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, publisher: publisher, logger: logger}
}

// HandleAlert applies one alert to the owning video's alert set. Alerts
// for unknown channels are dropped; a torn-down channel can still emit
// trailing alerts.
func (a *Aggregator) HandleAlert(ctx context.Context, alert Alert) error {
	if alert.ChannelARN == "" || alert.AlertType == "" {
		return nil
	}
	l, err := a.store.GetByChannelARN(ctx, alert.ChannelARN)
	if err != nil {
		return err
	}
	if l == nil {
		a.logger.Debug("alert for unknown channel", zap.String("channel_arn", alert.ChannelARN))
		return nil
	}

	next, changed := applyAlert(l.InputState, alert)
	if !changed {
		return nil
	}
	if err := a.store.SetInputState(ctx, l.VideoID, next); err != nil {
		return err
	}
	a.logger.Info("input state changed",
		zap.String("video_id", l.VideoID.String()),
		zap.String("alert_type", alert.AlertType),
		zap.String("alarm_state", alert.AlarmState),
		zap.Strings("input_state", next))
	if a.publisher != nil {
		a.publisher.Publish(l.VideoID, "input_state", map[string]interface{}{
			"video_id":    l.VideoID,
			"input_state": next,
		})
	}
	return nil
}

// applyAlert computes the next alert set. Insertion order is preserved;
// duplicates and absent removals leave the set unchanged.
func applyAlert(current []string, alert Alert) (next []string, changed bool) {
	switch alert.AlarmState {
	case AlarmSet:
		for _, name := range current {
			if name == alert.AlertType {
				return current, false
			}
		}
		next = make([]string, 0, len(current)+1)
		next = append(next, current...)
		next = append(next, alert.AlertType)
		return next, true

	case AlarmCleared:
		next = make([]string, 0, len(current))
		for _, name := range current {
			if name != alert.AlertType {
				next = append(next, name)
			}
		}
		return next, len(next) != len(current)

	default:
		return current, false
	}
}

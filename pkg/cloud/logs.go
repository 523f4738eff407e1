package cloud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"go.uber.org/zap"
)

const (
	mediaLiveLogGroup = "ElementalMediaLive"
	rtmpAcceptPattern = "Accepted RTMP connection"
)

// ChannelLogs reads MediaLive channel logs to detect encoder input.
type ChannelLogs struct {
	client *cloudwatchlogs.Client
	logger *zap.Logger
}

// NewChannelLogs creates a CloudWatch Logs wrapper.
func NewChannelLogs(awsCfg aws.Config, logger *zap.Logger) *ChannelLogs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelLogs{client: cloudwatchlogs.NewFromConfig(awsCfg), logger: logger}
}

// streamName derives the channel's log stream from its ARN. MediaLive
// names the stream after the ARN with colons replaced and a pipeline
// suffix appended.
func streamName(channelARN string) string {
	return strings.ReplaceAll(channelARN, ":", "_") + "_0"
}

// HasRecentConnection reports whether the channel accepted an RTMP
// connection within the trailing window.
func (c *ChannelLogs) HasRecentConnection(ctx context.Context, channelARN string, window time.Duration) (bool, error) {
	now := time.Now()
	out, err := c.client.FilterLogEvents(ctx, &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName:   aws.String(mediaLiveLogGroup),
		LogStreamNames: []string{streamName(channelARN)},
		FilterPattern:  aws.String(fmt.Sprintf("%q", rtmpAcceptPattern)),
		StartTime:      aws.Int64(now.Add(-window).UnixMilli()),
		EndTime:        aws.Int64(now.UnixMilli()),
	})
	if err != nil {
		return false, fmt.Errorf("filter log events: %w", err)
	}
	return len(out.Events) > 0, nil
}

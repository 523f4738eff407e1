package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/medialive"
	"github.com/aws/aws-sdk-go-v2/service/medialive/types"
	"go.uber.org/zap"
)

// ErrChannelNotFound is returned when the external live channel or input no
// longer exists. Start/stop callers surface it; teardown treats it as done.
var ErrChannelNotFound = errors.New("medialive channel not found")

// ChannelStatus is the observed state of an external live channel.
type ChannelStatus struct {
	State          string
	DestinationURL string // s3 destination of the first output, if any
}

// MediaLive wraps the AWS Elemental MediaLive operations the live video
// lifecycle needs. Every LiveVideo owns exactly one channel and one input.
type MediaLive struct {
	client  *medialive.Client
	roleARN string
	logger  *zap.Logger
}

// NewMediaLive creates a MediaLive wrapper.
func NewMediaLive(awsCfg aws.Config, roleARN string, logger *zap.Logger) *MediaLive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MediaLive{client: medialive.NewFromConfig(awsCfg), roleARN: roleARN, logger: logger}
}

// CreateInput provisions an RTMP push input named after the video.
func (m *MediaLive) CreateInput(ctx context.Context, videoID string) (inputID, inputURL string, err error) {
	sg, err := m.inputSecurityGroup(ctx)
	if err != nil {
		return "", "", fmt.Errorf("input security group: %w", err)
	}
	out, err := m.client.CreateInput(ctx, &medialive.CreateInputInput{
		Type:                types.InputTypeRtmpPush,
		Name:                aws.String(videoID),
		InputSecurityGroups: []string{sg},
		Destinations: []types.InputDestinationRequest{
			{StreamName: aws.String("live/" + videoID)},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("create input: %w", err)
	}
	inputID = aws.ToString(out.Input.Id)
	if len(out.Input.Destinations) > 0 {
		inputURL = aws.ToString(out.Input.Destinations[0].Url)
	}
	return inputID, inputURL, nil
}

// inputSecurityGroup returns the account's first input security group,
// creating an open one when none exists.
func (m *MediaLive) inputSecurityGroup(ctx context.Context) (string, error) {
	list, err := m.client.ListInputSecurityGroups(ctx, &medialive.ListInputSecurityGroupsInput{})
	if err == nil && len(list.InputSecurityGroups) > 0 {
		return aws.ToString(list.InputSecurityGroups[0].Id), nil
	}
	created, err := m.client.CreateInputSecurityGroup(ctx, &medialive.CreateInputSecurityGroupInput{
		WhitelistRules: []types.InputWhitelistRuleCidr{{Cidr: aws.String("0.0.0.0/0")}},
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(created.SecurityGroup.Id), nil
}

// CreateChannel provisions a single-pipeline HLS channel writing to
// s3://{bucket}/live/{videoID}/output and returns its ARN.
func (m *MediaLive) CreateChannel(ctx context.Context, name, bucket, videoID, inputID string) (string, error) {
	out, err := m.client.CreateChannel(ctx, &medialive.CreateChannelInput{
		ChannelClass: types.ChannelClassSinglePipeline,
		Name:         aws.String(name),
		RoleArn:      aws.String(m.roleARN),
		LogLevel:     types.LogLevelInfo,
		Destinations: []types.OutputDestination{
			{
				Id: aws.String(bucket),
				Settings: []types.OutputDestinationSettings{
					{Url: aws.String(fmt.Sprintf("s3://%s/live/%s/output", bucket, videoID))},
				},
			},
		},
		InputAttachments: []types.InputAttachment{
			{InputId: aws.String(inputID), InputAttachmentName: aws.String(videoID)},
		},
		EncoderSettings: hlsEncoderSettings(bucket),
	})
	if err != nil {
		return "", fmt.Errorf("create channel: %w", err)
	}
	return aws.ToString(out.Channel.Arn), nil
}

// hlsEncoderSettings is a single-rendition H.264/AAC HLS encode targeting
// the channel's S3 destination.
func hlsEncoderSettings(destinationRefID string) *types.EncoderSettings {
	return &types.EncoderSettings{
		TimecodeConfig: &types.TimecodeConfig{Source: types.TimecodeConfigSourceEmbedded},
		AudioDescriptions: []types.AudioDescription{
			{
				Name:              aws.String("audio_1"),
				AudioSelectorName: aws.String("default"),
				CodecSettings: &types.AudioCodecSettings{
					AacSettings: &types.AacSettings{
						Bitrate:    aws.Float64(128000),
						SampleRate: aws.Float64(48000),
					},
				},
			},
		},
		VideoDescriptions: []types.VideoDescription{
			{
				Name:   aws.String("video_720p"),
				Width:  aws.Int32(1280),
				Height: aws.Int32(720),
				CodecSettings: &types.VideoCodecSettings{
					H264Settings: &types.H264Settings{
						Bitrate:         aws.Int32(3000000),
						RateControlMode: types.H264RateControlModeCbr,
						FramerateControl: types.H264FramerateControlSpecified,
						FramerateNumerator:   aws.Int32(30),
						FramerateDenominator: aws.Int32(1),
					},
				},
			},
		},
		OutputGroups: []types.OutputGroup{
			{
				Name: aws.String("HLS"),
				OutputGroupSettings: &types.OutputGroupSettings{
					HlsGroupSettings: &types.HlsGroupSettings{
						Destination: &types.OutputLocationRef{
							DestinationRefId: aws.String(destinationRefID),
						},
						SegmentLength: aws.Int32(6),
					},
				},
				Outputs: []types.Output{
					{
						OutputName:            aws.String("output"),
						VideoDescriptionName:  aws.String("video_720p"),
						AudioDescriptionNames: []string{"audio_1"},
						OutputSettings: &types.OutputSettings{
							HlsOutputSettings: &types.HlsOutputSettings{
								NameModifier: aws.String("_hls"),
								HlsSettings: &types.HlsSettings{
									StandardHlsSettings: &types.StandardHlsSettings{
										M3u8Settings: &types.M3u8Settings{},
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

// StartChannel starts the external channel.
func (m *MediaLive) StartChannel(ctx context.Context, channelID string) error {
	_, err := m.client.StartChannel(ctx, &medialive.StartChannelInput{ChannelId: aws.String(channelID)})
	return mapChannelErr(err, "start channel")
}

// StopChannel stops the external channel.
func (m *MediaLive) StopChannel(ctx context.Context, channelID string) error {
	_, err := m.client.StopChannel(ctx, &medialive.StopChannelInput{ChannelId: aws.String(channelID)})
	return mapChannelErr(err, "stop channel")
}

// DescribeChannel returns the channel's current state.
func (m *MediaLive) DescribeChannel(ctx context.Context, channelID string) (*ChannelStatus, error) {
	out, err := m.client.DescribeChannel(ctx, &medialive.DescribeChannelInput{ChannelId: aws.String(channelID)})
	if err != nil {
		return nil, mapChannelErr(err, "describe channel")
	}
	status := &ChannelStatus{State: string(out.State)}
	if len(out.Destinations) > 0 && len(out.Destinations[0].Settings) > 0 {
		status.DestinationURL = aws.ToString(out.Destinations[0].Settings[0].Url)
	}
	return status, nil
}

// DeleteChannel deletes the external channel. Already-gone is success.
func (m *MediaLive) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := m.client.DeleteChannel(ctx, &medialive.DeleteChannelInput{ChannelId: aws.String(channelID)})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// DeleteInput deletes the external input. Already-gone is success.
func (m *MediaLive) DeleteInput(ctx context.Context, inputID string) error {
	_, err := m.client.DeleteInput(ctx, &medialive.DeleteInputInput{InputId: aws.String(inputID)})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("delete input: %w", err)
	}
	return nil
}

func mapChannelErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var nf *types.NotFoundException
	if errors.As(err, &nf) {
		return fmt.Errorf("%s: %w", op, ErrChannelNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

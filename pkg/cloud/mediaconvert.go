package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert/types"
	"go.uber.org/zap"
)

// Transcode job statuses as reported by MediaConvert.
const (
	JobStatusProgressing = "PROGRESSING"
	JobStatusComplete    = "COMPLETE"
	JobStatusError       = "ERROR"
)

// JobStatus is the observed state of a transcode job.
type JobStatus struct {
	Status          string
	PercentComplete int
	DurationMS      int64 // duration of the first output, 0 until complete
}

// MediaConvert wraps the AWS Elemental MediaConvert job operations.
type MediaConvert struct {
	client  *mediaconvert.Client
	roleARN string
	logger  *zap.Logger
}

// NewMediaConvert creates a MediaConvert wrapper. The endpoint is the
// account-specific MediaConvert endpoint URL.
func NewMediaConvert(awsCfg aws.Config, endpoint, roleARN string, logger *zap.Logger) *MediaConvert {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := mediaconvert.NewFromConfig(awsCfg, func(o *mediaconvert.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &MediaConvert{client: client, roleARN: roleARN, logger: logger}
}

// SubmitJob submits a transcode job for s3://{bucket}/{videoID}/input.mp4
// and returns the job id. Video media produces an HLS rendition plus
// thumbnails; audio media produces a single MP4 audio output.
func (m *MediaConvert) SubmitJob(ctx context.Context, bucket, videoID, mediaType string) (string, error) {
	settings := &types.JobSettings{
		Inputs: []types.Input{
			{
				FileInput: aws.String(fmt.Sprintf("s3://%s/%s/input.mp4", bucket, videoID)),
				AudioSelectors: map[string]types.AudioSelector{
					"Audio Selector 1": {DefaultSelection: types.AudioDefaultSelectionDefault},
				},
				VideoSelector:  &types.VideoSelector{},
				TimecodeSource: types.InputTimecodeSourceZerobased,
			},
		},
	}
	if mediaType == "audio" {
		settings.OutputGroups = audioOutputGroups(bucket, videoID)
	} else {
		settings.OutputGroups = videoOutputGroups(bucket, videoID)
	}

	out, err := m.client.CreateJob(ctx, &mediaconvert.CreateJobInput{
		Role:     aws.String(m.roleARN),
		Settings: settings,
	})
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	jobID := aws.ToString(out.Job.Id)
	m.logger.Info("transcode job submitted", zap.String("video_id", videoID), zap.String("job_id", jobID))
	return jobID, nil
}

func videoOutputGroups(bucket, videoID string) []types.OutputGroup {
	return []types.OutputGroup{
		{
			Name: aws.String("Apple HLS"),
			OutputGroupSettings: &types.OutputGroupSettings{
				Type: types.OutputGroupTypeHlsGroupSettings,
				HlsGroupSettings: &types.HlsGroupSettings{
					Destination:      aws.String(fmt.Sprintf("s3://%s/%s/hls/output", bucket, videoID)),
					SegmentLength:    aws.Int32(6),
					MinSegmentLength: aws.Int32(0),
				},
			},
			Outputs: []types.Output{
				{
					Preset:       aws.String("System-Avc_16x9_720p_29_97fps_3500kbps"),
					NameModifier: aws.String("_720p"),
				},
			},
		},
		{
			CustomName: aws.String("Thumbs"),
			OutputGroupSettings: &types.OutputGroupSettings{
				Type: types.OutputGroupTypeFileGroupSettings,
				FileGroupSettings: &types.FileGroupSettings{
					Destination: aws.String(fmt.Sprintf("s3://%s/%s/thumbs/thumb", bucket, videoID)),
				},
			},
			Outputs: []types.Output{
				{
					ContainerSettings: &types.ContainerSettings{Container: types.ContainerTypeRaw},
					VideoDescription: &types.VideoDescription{
						CodecSettings: &types.VideoCodecSettings{
							Codec: types.VideoCodecFrameCapture,
							FrameCaptureSettings: &types.FrameCaptureSettings{
								FramerateNumerator:   aws.Int32(1),
								FramerateDenominator: aws.Int32(10),
								MaxCaptures:          aws.Int32(10),
								Quality:              aws.Int32(80),
							},
						},
					},
					Extension: aws.String("jpg"),
				},
			},
		},
	}
}

func audioOutputGroups(bucket, videoID string) []types.OutputGroup {
	return []types.OutputGroup{
		{
			Name: aws.String("File Group"),
			OutputGroupSettings: &types.OutputGroupSettings{
				Type: types.OutputGroupTypeFileGroupSettings,
				FileGroupSettings: &types.FileGroupSettings{
					Destination: aws.String(fmt.Sprintf("s3://%s/%s/audio/output", bucket, videoID)),
				},
			},
			Outputs: []types.Output{
				{
					Preset: aws.String("System-Audio_Aac_128kbps"),
				},
			},
		},
	}
}

// GetJob returns the status of a transcode job.
func (m *MediaConvert) GetJob(ctx context.Context, jobID string) (*JobStatus, error) {
	out, err := m.client.GetJob(ctx, &mediaconvert.GetJobInput{Id: aws.String(jobID)})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	status := &JobStatus{
		Status:          string(out.Job.Status),
		PercentComplete: int(aws.ToInt32(out.Job.JobPercentComplete)),
	}
	if len(out.Job.OutputGroupDetails) > 0 && len(out.Job.OutputGroupDetails[0].OutputDetails) > 0 {
		status.DurationMS = int64(aws.ToInt32(out.Job.OutputGroupDetails[0].OutputDetails[0].DurationInMs))
	}
	return status, nil
}

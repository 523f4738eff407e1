// Package cloud wraps the AWS media services this platform orchestrates:
// MediaLive channels, MediaConvert jobs, S3 object storage, CloudFront
// distributions, SNS alert topics, EventBridge alert rules and CloudWatch
// Logs queries. Each wrapper exposes only the operations the lifecycle
// services consume.
package cloud

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"go.uber.org/zap"
)

// Config holds AWS client configuration shared by all service wrappers.
type Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	MediaConvertEndpoint string
	MediaConvertRole     string
	MediaLiveRole        string
	PresignExpire        time.Duration
}

// LoadAWSConfig builds an aws.Config from static credentials in the
// environment/config, falling back to the default credential chain.
func LoadAWSConfig(ctx context.Context, cfg Config, logger *zap.Logger) (aws.Config, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else if logger != nil {
		logger.Warn("AWS clients using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

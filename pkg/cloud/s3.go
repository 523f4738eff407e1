package cloud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// ObjectStorage wraps the S3 operations the media lifecycle needs:
// presigned upload grants, prefix deletion and prefix sizing.
type ObjectStorage struct {
	client        *s3.Client
	presignExpire time.Duration
	logger        *zap.Logger
}

// NewObjectStorage creates an S3 wrapper.
func NewObjectStorage(awsCfg aws.Config, presignExpire time.Duration, logger *zap.Logger) *ObjectStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if presignExpire <= 0 {
		presignExpire = 15 * time.Minute
	}
	return &ObjectStorage{client: s3.NewFromConfig(awsCfg), presignExpire: presignExpire, logger: logger}
}

// PresignUpload returns a pre-signed PUT URL for direct client upload.
func (o *ObjectStorage) PresignUpload(ctx context.Context, bucket, key, contentType string) (string, error) {
	presignClient := s3.NewPresignClient(o.client)
	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = o.presignExpire
	})
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return req.URL, nil
}

// DeletePrefix removes every object under prefix, in batches of up to 1000.
func (o *ObjectStorage) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	paginator := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = o.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete objects: %w", err)
		}
	}
	return nil
}

// SizeOfPrefix sums the size in bytes of every object under prefix.
func (o *ObjectStorage) SizeOfPrefix(ctx context.Context, bucket, prefix string) (int64, error) {
	prefix = strings.TrimSuffix(prefix, "/") + "/"
	var total int64
	paginator := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			total += aws.ToInt64(obj.Size)
		}
	}
	return total, nil
}

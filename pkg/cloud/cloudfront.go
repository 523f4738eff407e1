package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"go.uber.org/zap"
)

// CDN wraps the CloudFront distribution operations: provisioning over an
// organization bucket, geo restriction, cache invalidation and teardown.
type CDN struct {
	client *cloudfront.Client
	logger *zap.Logger
}

// NewCDN creates a CloudFront wrapper.
func NewCDN(awsCfg aws.Config, logger *zap.Logger) *CDN {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CDN{client: cloudfront.NewFromConfig(awsCfg), logger: logger}
}

// CreateDistribution provisions a distribution in front of the bucket with
// an optional origin path (e.g. /live/{video_id}). Live distributions use
// short TTLs so playlist updates propagate quickly.
func (c *CDN) CreateDistribution(ctx context.Context, bucket, originPath string, defaultTTL, maxTTL int64) (id, domain string, err error) {
	origin := types.Origin{
		Id:         aws.String(bucket),
		DomainName: aws.String(bucket + ".s3.amazonaws.com"),
		S3OriginConfig: &types.S3OriginConfig{
			OriginAccessIdentity: aws.String(""),
		},
	}
	if originPath != "" {
		origin.OriginPath = aws.String(originPath)
	}
	config := &types.DistributionConfig{
		CallerReference: aws.String(fmt.Sprintf("%d", time.Now().UnixNano())),
		Comment:         aws.String(bucket + originPath),
		Enabled:         aws.Bool(true),
		Origins: &types.Origins{
			Quantity: aws.Int32(1),
			Items:    []types.Origin{origin},
		},
		DefaultCacheBehavior: &types.DefaultCacheBehavior{
			TargetOriginId:       aws.String(bucket),
			ViewerProtocolPolicy: types.ViewerProtocolPolicyRedirectToHttps,
			MinTTL:               aws.Int64(0),
			DefaultTTL:           aws.Int64(defaultTTL),
			MaxTTL:               aws.Int64(maxTTL),
			ForwardedValues: &types.ForwardedValues{
				QueryString: aws.Bool(false),
				Cookies:     &types.CookiePreference{Forward: types.ItemSelectionNone},
			},
			TrustedSigners: &types.TrustedSigners{
				Enabled:  aws.Bool(false),
				Quantity: aws.Int32(0),
			},
		},
	}
	out, err := c.client.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{
		DistributionConfig: config,
	})
	if err != nil {
		return "", "", fmt.Errorf("create distribution: %w", err)
	}
	return aws.ToString(out.Distribution.Id), aws.ToString(out.Distribution.DomainName), nil
}

// UpdateGeoRestriction sets the distribution's geo restriction. geoType is
// "whitelist", "blacklist" or "none"; countries are ISO country codes.
func (c *CDN) UpdateGeoRestriction(ctx context.Context, distributionID, geoType string, countries []string) error {
	current, err := c.client.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: aws.String(distributionID),
	})
	if err != nil {
		return fmt.Errorf("get distribution config: %w", err)
	}
	restriction := &types.GeoRestriction{
		RestrictionType: types.GeoRestrictionType(geoType),
		Quantity:        aws.Int32(int32(len(countries))),
	}
	if geoType == "none" {
		restriction.Quantity = aws.Int32(0)
	} else {
		restriction.Items = countries
	}
	config := current.DistributionConfig
	config.Restrictions = &types.Restrictions{GeoRestriction: restriction}
	_, err = c.client.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(distributionID),
		IfMatch:            current.ETag,
		DistributionConfig: config,
	})
	if err != nil {
		return fmt.Errorf("update distribution: %w", err)
	}
	return nil
}

// CreateInvalidation invalidates cached paths on the distribution.
func (c *CDN) CreateInvalidation(ctx context.Context, distributionID string, paths []string) error {
	_, err := c.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(distributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(fmt.Sprintf("%d", time.Now().UnixNano())),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(paths))),
				Items:    paths,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create invalidation: %w", err)
	}
	return nil
}

// DisableDistribution turns the distribution off. A distribution must be
// disabled and fully deployed before CloudFront accepts its deletion.
func (c *CDN) DisableDistribution(ctx context.Context, distributionID string) error {
	current, err := c.client.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: aws.String(distributionID),
	})
	if err != nil {
		return fmt.Errorf("get distribution config: %w", err)
	}
	config := current.DistributionConfig
	if !aws.ToBool(config.Enabled) {
		return nil
	}
	config.Enabled = aws.Bool(false)
	_, err = c.client.UpdateDistribution(ctx, &cloudfront.UpdateDistributionInput{
		Id:                 aws.String(distributionID),
		IfMatch:            current.ETag,
		DistributionConfig: config,
	})
	if err != nil {
		return fmt.Errorf("disable distribution: %w", err)
	}
	return nil
}

// DeleteDistribution removes a disabled distribution. Returns an error
// while the disable is still deploying; callers retry later.
func (c *CDN) DeleteDistribution(ctx context.Context, distributionID string) error {
	current, err := c.client.GetDistributionConfig(ctx, &cloudfront.GetDistributionConfigInput{
		Id: aws.String(distributionID),
	})
	if err != nil {
		var nf *types.NoSuchDistribution
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("get distribution config: %w", err)
	}
	_, err = c.client.DeleteDistribution(ctx, &cloudfront.DeleteDistributionInput{
		Id:      aws.String(distributionID),
		IfMatch: current.ETag,
	})
	if err != nil {
		return fmt.Errorf("delete distribution: %w", err)
	}
	return nil
}

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// Topics wraps the SNS operations backing live channel alert delivery:
// one topic per live video, subscribed to the notify webhook.
type Topics struct {
	client *sns.Client
	logger *zap.Logger
}

// NewTopics creates an SNS wrapper.
func NewTopics(awsCfg aws.Config, logger *zap.Logger) *Topics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Topics{client: sns.NewFromConfig(awsCfg), logger: logger}
}

// CreateTopic creates the alert topic named after the video and grants
// EventBridge permission to publish to it.
func (t *Topics) CreateTopic(ctx context.Context, name string) (string, error) {
	out, err := t.client.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("create topic: %w", err)
	}
	topicARN := aws.ToString(out.TopicArn)

	attrs, err := t.client.GetTopicAttributes(ctx, &sns.GetTopicAttributesInput{TopicArn: out.TopicArn})
	if err != nil {
		return "", fmt.Errorf("get topic attributes: %w", err)
	}
	var policy map[string]interface{}
	if err := json.Unmarshal([]byte(attrs.Attributes["Policy"]), &policy); err != nil {
		return "", fmt.Errorf("decode topic policy: %w", err)
	}
	statements, _ := policy["Statement"].([]interface{})
	policy["Statement"] = append(statements, map[string]interface{}{
		"Sid":       "Allow_Publish_Events",
		"Effect":    "Allow",
		"Principal": map[string]string{"Service": "events.amazonaws.com"},
		"Action":    "sns:Publish",
		"Resource":  topicARN,
	})
	raw, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("encode topic policy: %w", err)
	}
	_, err = t.client.SetTopicAttributes(ctx, &sns.SetTopicAttributesInput{
		TopicArn:       out.TopicArn,
		AttributeName:  aws.String("Policy"),
		AttributeValue: aws.String(string(raw)),
	})
	if err != nil {
		return "", fmt.Errorf("set topic policy: %w", err)
	}
	return topicARN, nil
}

// DeleteTopic removes the alert topic. Already-gone is success.
func (t *Topics) DeleteTopic(ctx context.Context, topicARN string) error {
	_, err := t.client.DeleteTopic(ctx, &sns.DeleteTopicInput{TopicArn: aws.String(topicARN)})
	if err != nil {
		var nf *types.NotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("delete topic: %w", err)
	}
	return nil
}

// Subscribe subscribes an HTTPS endpoint to the topic and returns the
// subscription ARN (or "pending confirmation" until the endpoint confirms).
func (t *Topics) Subscribe(ctx context.Context, topicARN, endpoint string) (string, error) {
	out, err := t.client.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn:              aws.String(topicARN),
		Protocol:              aws.String("https"),
		Endpoint:              aws.String(endpoint),
		ReturnSubscriptionArn: true,
	})
	if err != nil {
		return "", fmt.Errorf("subscribe: %w", err)
	}
	return aws.ToString(out.SubscriptionArn), nil
}

// UnsubscribeAll removes every subscription on the topic, skipping
// already-gone and pending subscriptions.
func (t *Topics) UnsubscribeAll(ctx context.Context, topicARN string) error {
	out, err := t.client.ListSubscriptionsByTopic(ctx, &sns.ListSubscriptionsByTopicInput{
		TopicArn: aws.String(topicARN),
	})
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	for _, sub := range out.Subscriptions {
		_, err := t.client.Unsubscribe(ctx, &sns.UnsubscribeInput{SubscriptionArn: sub.SubscriptionArn})
		if err != nil {
			var nf *types.NotFoundException
			var invalid *types.InvalidParameterException
			if errors.As(err, &nf) || errors.As(err, &invalid) {
				continue
			}
			return fmt.Errorf("unsubscribe %s: %w", aws.ToString(sub.SubscriptionArn), err)
		}
	}
	return nil
}

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// AlertRules wraps the EventBridge rules that route MediaLive channel
// alerts into a live video's SNS topic.
type AlertRules struct {
	client *eventbridge.Client
	logger *zap.Logger
}

// NewAlertRules creates an EventBridge wrapper.
func NewAlertRules(awsCfg aws.Config, logger *zap.Logger) *AlertRules {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertRules{client: eventbridge.NewFromConfig(awsCfg), logger: logger}
}

// PutAlertRule creates (or updates) a rule matching MediaLive Channel
// Alert events for the channel.
func (a *AlertRules) PutAlertRule(ctx context.Context, name, channelARN string) error {
	pattern, err := json.Marshal(map[string][]string{
		"source":      {"aws.medialive"},
		"detail-type": {"MediaLive Channel Alert"},
		"resources":   {channelARN},
	})
	if err != nil {
		return fmt.Errorf("encode event pattern: %w", err)
	}
	_, err = a.client.PutRule(ctx, &eventbridge.PutRuleInput{
		Name:         aws.String(name),
		EventPattern: aws.String(string(pattern)),
		State:        types.RuleStateEnabled,
	})
	if err != nil {
		return fmt.Errorf("put rule: %w", err)
	}
	return nil
}

// DeleteAlertRule removes the rule. Already-gone is success.
func (a *AlertRules) DeleteAlertRule(ctx context.Context, name string) error {
	_, err := a.client.DeleteRule(ctx, &eventbridge.DeleteRuleInput{Name: aws.String(name)})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// AddTopicTarget routes the rule's alert detail into the SNS topic.
func (a *AlertRules) AddTopicTarget(ctx context.Context, rule, targetID, topicARN string) error {
	_, err := a.client.PutTargets(ctx, &eventbridge.PutTargetsInput{
		Rule: aws.String(rule),
		Targets: []types.Target{
			{
				Id:        aws.String(targetID),
				Arn:       aws.String(topicARN),
				InputPath: aws.String("$.detail"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("put targets: %w", err)
	}
	return nil
}

// RemoveTopicTarget removes the rule's topic target. Already-gone is success.
func (a *AlertRules) RemoveTopicTarget(ctx context.Context, rule, targetID string) error {
	_, err := a.client.RemoveTargets(ctx, &eventbridge.RemoveTargetsInput{
		Rule: aws.String(rule),
		Ids:  []string{targetID},
	})
	if err != nil {
		var nf *types.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("remove targets: %w", err)
	}
	return nil
}

// Package queue provides the SQS-based producer for welcome notification
// messages consumed by the email worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"lovebirdz/internal/config"
	"lovebirdz/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// WelcomePublisher enqueues welcome notifications after provisioning
// commits. The queue is the explicit hand-off that keeps notification
// failures out of the provisioning call path: a failed enqueue is the
// caller's to log, never to propagate.
type WelcomePublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewWelcomePublisher creates a WelcomePublisher reading the queue URL from
// the AWS configuration.
func NewWelcomePublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *WelcomePublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WelcomePublisher{
		client:   client,
		queueURL: awsCfg.WelcomeQueue,
		logger:   logger,
	}
}

// Publish serializes the welcome message and dispatches it to the queue.
func (p *WelcomePublisher) Publish(ctx context.Context, msg types.WelcomeMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal WelcomeMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String("welcome"),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send WelcomeMessage to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "welcome message enqueued",
		"queue_url", p.queueURL,
		"message_id", msg.MessageID,
		"account_id", msg.AccountID,
	)

	return nil
}

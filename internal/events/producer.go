// Package events publishes dispatch audit events to SQS for the
// analytics pipeline that builds attendance compliance reports.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/dispatch"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
}

// Producer sends dispatch events to SQS. It satisfies dispatch.Auditor.
type Producer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("sqs audit producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Producer{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// DispatchRecorded publishes one audit event. Failures here never block
// the dispatch run; the caller logs and moves on.
func (p *Producer) DispatchRecorded(ctx context.Context, ev dispatch.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send audit event to sqs",
			zap.Error(err),
			zap.String("project_id", ev.ProjectID.String()),
			zap.String("kind", ev.Kind),
		)
		return fmt.Errorf("sqs send failed: %w", err)
	}

	p.logger.Debug("audit event published",
		zap.String("message_id", aws.ToString(result.MessageId)),
		zap.String("kind", ev.Kind),
	)
	return nil
}

// Close closes the SQS producer.
func (p *Producer) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}

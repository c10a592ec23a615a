package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// SNSSender delivers reminders through AWS SNS mobile push. Each endpoint
// token is a platform endpoint ARN registered by the mobile app.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

// NewSNSSender creates an SNS-backed push sender.
func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

type snsResult struct {
	MessageIDs []string          `json:"message_ids"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// Send publishes the batch payload to every endpoint ARN. SNS has no true
// batch publish for platform endpoints, so the fan-out happens here; the
// per-endpoint outcomes are aggregated into one response payload.
func (s *SNSSender) Send(ctx context.Context, batch *Batch) (*Response, error) {
	if len(batch.Endpoints) == 0 {
		return nil, fmt.Errorf("empty endpoint set")
	}

	body, err := marshalPayload(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal push payload: %w", err)
	}

	result := snsResult{Failures: map[string]string{}}
	var gone []string

	for _, ep := range batch.Endpoints {
		input := &sns.PublishInput{
			TargetArn: aws.String(ep.Token),
			Message:   aws.String(string(body)),
		}

		out, err := s.client.Publish(ctx, input)
		if err != nil {
			var disabled *types.EndpointDisabledException
			if errors.As(err, &disabled) {
				gone = append(gone, ep.Token)
			}
			result.Failures[ep.Token] = err.Error()
			s.logger.Warn("sns publish failed",
				zap.String("project_id", batch.ProjectID.String()),
				zap.Error(err),
			)
			continue
		}

		result.MessageIDs = append(result.MessageIDs, aws.ToString(out.MessageId))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal sns result: %w", err)
	}

	resp := &Response{
		Provider:      s.Name(),
		Delivered:     len(result.MessageIDs),
		Raw:           raw,
		GoneEndpoints: gone,
	}

	if resp.Delivered == 0 {
		return resp, fmt.Errorf("sns rejected all %d endpoints", len(batch.Endpoints))
	}

	s.logger.Info("push batch sent via SNS",
		zap.String("project_id", batch.ProjectID.String()),
		zap.String("kind", batch.Kind),
		zap.Int("delivered", resp.Delivered),
		zap.Int("failed", len(result.Failures)),
	)

	return resp, nil
}

func (s *SNSSender) Name() string { return "sns" }

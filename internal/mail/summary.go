// Package mail emails dispatch run summaries to the operations inbox
// via AWS SES.
package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/paintconnect/foreman/internal/dispatch"
)

type Config struct {
	Region    string
	FromEmail string
	ToEmail   string
}

// SummaryMailer sends a plain-text digest of a dispatch run.
type SummaryMailer struct {
	client *ses.Client
	from   string
	to     string
	logger *zap.Logger
}

func NewSummaryMailer(ctx context.Context, cfg Config, logger *zap.Logger) (*SummaryMailer, error) {
	if cfg.FromEmail == "" || cfg.ToEmail == "" {
		return nil, fmt.Errorf("summary mailer requires from and to addresses")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}

	return &SummaryMailer{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		to:     cfg.ToEmail,
		logger: logger,
	}, nil
}

// SendRunSummary emails the run report. Only runs that did something or
// failed are worth a mail; quiet runs are skipped to keep the inbox sane.
func (s *SummaryMailer) SendRunSummary(ctx context.Context, rep *dispatch.Report) error {
	if rep.Success && rep.CheckInRemindersSent == 0 && rep.CheckOutRemindersSent == 0 {
		return nil
	}

	subject := fmt.Sprintf("Reminder dispatch %s: %d check-in, %d check-out",
		rep.CurrentTime, rep.CheckInRemindersSent, rep.CheckOutRemindersSent)
	if !rep.Success {
		subject = fmt.Sprintf("Reminder dispatch FAILED at %s", rep.CurrentTime)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{s.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(summaryBody(rep)),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("run summary emailed",
		zap.String("to", s.to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

func summaryBody(rep *dispatch.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dispatch run at %s (%s)\n\n", rep.Timestamp, rep.CurrentTime)
	fmt.Fprintf(&b, "Projects checked:    %d\n", rep.ProjectsChecked)
	fmt.Fprintf(&b, "Check-in reminders:  %d\n", rep.CheckInRemindersSent)
	fmt.Fprintf(&b, "Check-out reminders: %d\n", rep.CheckOutRemindersSent)
	if rep.Error != "" {
		fmt.Fprintf(&b, "\nError: %s\n", rep.Error)
	}
	if len(rep.Debug) > 0 {
		b.WriteString("\nTrace:\n")
		for _, line := range rep.Debug {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}

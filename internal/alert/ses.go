package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

// SESNotifier delivers security alerts by email using AWS SES.
type SESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	toAddresses []string
	logger      *slog.Logger
}

// NewSESNotifier creates an email notifier backed by AWS SES.
func NewSESNotifier(region, fromAddress string, toAddresses []string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddresses: toAddresses,
		logger:      logger,
	}, nil
}

// Notify sends a plain text alert email describing the event.
func (n *SESNotifier) Notify(ctx context.Context, event security.SecurityEvent) error {
	subject := fmt.Sprintf("[sentinel] %s alert: %s", strings.ToUpper(string(event.Severity)), event.Type)

	var details strings.Builder
	for k, v := range event.Details {
		fmt.Fprintf(&details, "  %s: %v\n", k, v)
	}

	textBody := fmt.Sprintf(`A security event requires attention.

Event ID:  %s
Type:      %s
Severity:  %s
Source IP: %s
Endpoint:  %s
Time:      %s

Details:
%s
This is an automated message. Please do not reply to this email.
`, event.ID, event.Type, event.Severity, event.IP, event.Endpoint,
		event.Timestamp.Format("2006-01-02 15:04:05 MST"), details.String())

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: n.toAddresses,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	if _, err := n.sesClient.SendEmail(ctx, input); err != nil {
		n.logger.Error("failed to send alert email",
			slog.String("event_id", event.ID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	n.logger.Info("alert email sent",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)))
	return nil
}

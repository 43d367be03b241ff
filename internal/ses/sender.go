// Package ses sends email through AWS SES v2. It is transport only: pacing,
// chunking, and audit logging belong to the email job workflow.
package ses

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/gatherhq/batch-jobs-service/internal/pkg/logger"
	"github.com/gatherhq/batch-jobs-service/internal/pkg/metrics"
)

// MaxBatchSize is the largest slice SendBatch accepts. SES has no true bulk
// endpoint, so batches are dispatched individually in sequence.
const MaxBatchSize = 50

// EmailMessage is one outbound email.
type EmailMessage struct {
	To         string
	FromName   string
	FromEmail  string
	ReplyTo    string
	Subject    string
	HTMLBody   string
	TenantID   int64
	TemplateID *int64
}

// SendResult is the outcome of one send attempt.
type SendResult struct {
	Success   bool
	MessageID string
	Error     error
	SentAt    time.Time
}

// BatchSendResult aggregates the outcomes of one chunk.
type BatchSendResult struct {
	Results  []SendResult
	Accepted int
	Rejected int
}

// Sender delivers email via AWS SES using the SDK v2.
type Sender struct {
	region string
	client *sesv2.Client
}

// NewSender creates an SES sender. With empty credentials the ambient AWS
// chain is used; a client that cannot be built leaves the sender inert and
// every send fails with a configuration error.
func NewSender(accessKey, secretKey, region string) *Sender {
	if region == "" {
		region = "us-east-1"
	}

	sender := &Sender{region: region}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		log.Printf("[SES] Warning: Failed to initialize AWS config: %v", err)
		return sender
	}
	sender.client = sesv2.NewFromConfig(cfg)
	return sender
}

// Send delivers a single email. Provider rejections come back inside the
// result; the returned error is reserved for a missing client.
func (s *Sender) Send(ctx context.Context, msg *EmailMessage) (*SendResult, error) {
	if s.client == nil {
		return nil, fmt.Errorf("SES client not initialized - check credentials")
	}

	result, err := s.client.SendEmail(ctx, buildInput(msg))
	if err != nil {
		log.Printf("[SES] Failed to send to %s: %v", logger.RedactEmail(msg.To), err)
		metrics.EmailsSent.WithLabelValues("FAILED").Inc()
		return &SendResult{Success: false, Error: err}, nil
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}

	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)
	metrics.EmailsSent.WithLabelValues("SENT").Inc()

	return &SendResult{Success: true, MessageID: messageID, SentAt: time.Now()}, nil
}

// SendBatch sends up to MaxBatchSize emails in sequence.
func (s *Sender) SendBatch(ctx context.Context, messages []EmailMessage) (*BatchSendResult, error) {
	if s.client == nil {
		return nil, fmt.Errorf("SES client not initialized - check credentials")
	}
	if len(messages) == 0 {
		return &BatchSendResult{}, nil
	}
	if len(messages) > MaxBatchSize {
		return nil, fmt.Errorf("SES batch size %d exceeds max %d", len(messages), MaxBatchSize)
	}

	results := &BatchSendResult{Results: make([]SendResult, len(messages))}
	for i := range messages {
		result, err := s.Send(ctx, &messages[i])
		if err != nil {
			results.Results[i] = SendResult{Success: false, Error: err}
			results.Rejected++
			continue
		}
		results.Results[i] = *result
		if result.Success {
			results.Accepted++
		} else {
			results.Rejected++
		}
	}
	return results, nil
}

func buildInput(msg *EmailMessage) *sesv2.SendEmailInput {
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("tenant_id"), Value: aws.String(fmt.Sprintf("%d", msg.TenantID))},
		},
	}

	if msg.TemplateID != nil {
		input.EmailTags = append(input.EmailTags, types.MessageTag{
			Name: aws.String("template_id"), Value: aws.String(fmt.Sprintf("%d", *msg.TemplateID)),
		})
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	return input
}

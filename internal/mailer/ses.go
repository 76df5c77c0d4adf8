package mailer

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/weekly-campaign/internal/domain"
	"github.com/ignite/weekly-campaign/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client we use.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESOptions configures an SESTransport.
type SESOptions struct {
	Region           string
	AccessKey        string
	SecretKey        string
	ConfigurationSet string
	// Client overrides the SDK client.
	Client SESAPI
}

// SESTransport delivers through AWS SES v2.
type SESTransport struct {
	client           SESAPI
	configurationSet string
}

// SES tag values allow only alphanumerics, '_', '-', '.', '@'.
var invalidTagChars = regexp.MustCompile(`[^A-Za-z0-9_\-.@]`)

// NewSESTransport builds an SES client. Static keys are used when both are
// set; otherwise the default AWS credential chain applies.
func NewSESTransport(ctx context.Context, opts SESOptions) (*SESTransport, error) {
	client := opts.Client
	if client == nil {
		if opts.Region == "" {
			opts.Region = "us-east-1"
		}
		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
		if opts.AccessKey != "" && opts.SecretKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("ses: load AWS config: %w", err)
		}
		client = sesv2.NewFromConfig(cfg)
	}
	return &SESTransport{client: client, configurationSet: opts.ConfigurationSet}, nil
}

// Send delivers a single email.
func (s *SESTransport) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: sesTags(msg.Tags),
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses: send: %w", err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	log.Printf("[SES] Sent to %s (id: %s)", logger.RedactEmail(msg.To), messageID)

	return &domain.SendResult{
		MessageID: messageID,
		Transport: domain.TransportSES,
		SentAt:    time.Now().UTC(),
	}, nil
}

func sesTags(tags map[string]string) []types.MessageTag {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.MessageTag, 0, len(keys))
	for _, k := range keys {
		v := invalidTagChars.ReplaceAllString(tags[k], "_")
		if v == "" {
			continue
		}
		out = append(out, types.MessageTag{Name: aws.String(invalidTagChars.ReplaceAllString(k, "_")), Value: aws.String(v)})
	}
	return out
}

package mailing

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/pkg/logger"
)

// SESAPI is the subset of the SES v2 client the gateway calls.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESGateway sends through AWS SES using the SDK v2.
type SESGateway struct {
	client SESAPI
	from   Sender
}

// NewSESGateway builds an SES client for region. Static credentials are
// used when both keys are set; otherwise the default AWS chain applies.
func NewSESGateway(ctx context.Context, accessKey, secretKey, region string, from Sender) (*SESGateway, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESGatewayWithClient(sesv2.NewFromConfig(cfg), from), nil
}

// NewSESGatewayWithClient wraps an existing SES client.
func NewSESGatewayWithClient(client SESAPI, from Sender) *SESGateway {
	return &SESGateway{client: client, from: from}
}

// Deliver sends a single HTML message.
func (g *SESGateway) Deliver(ctx context.Context, recipient, subject, body string) domain.DeliveryResult {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(g.from.String()),
		Destination:      &types.Destination{ToAddresses: []string{recipient}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	out, err := g.client.SendEmail(ctx, input)
	if err != nil {
		logger.Warn("ses send failed", "recipient", recipient, "error", err)
		return liveError(err)
	}

	id := aws.ToString(out.MessageId)
	logger.Info("ses sent", "recipient", recipient, "email_id", id)

	return domain.DeliveryResult{
		Status:  domain.OutcomeSuccess,
		ID:      id,
		Mode:    domain.ModeLive,
		Message: "Email sent",
	}
}

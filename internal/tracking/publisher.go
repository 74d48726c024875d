// Package tracking fans sequence lifecycle events out to an SQS queue so
// other systems (CRM sync, analytics) can follow a user's drip progress.
package tracking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/pkg/logger"
)

const publishTimeout = 5 * time.Second

// SQSAPI is the subset of the SQS client the publisher uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher implements drip.Notifier. Publishing is fire-and-forget: the
// caller never waits on SQS and a failed publish is only logged.
type Publisher struct {
	client   SQSAPI
	queueURL string
	wg       sync.WaitGroup
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// NewPublisherFromRegion loads the default AWS config for region.
func NewPublisherFromRegion(ctx context.Context, region, queueURL string) (*Publisher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return NewPublisher(sqs.NewFromConfig(cfg), queueURL), nil
}

// Notify queues ev for delivery. ctx is not used for the send so a
// finished request does not cancel an in-flight publish.
func (p *Publisher) Notify(_ context.Context, ev domain.LifecycleEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		logger.Error("marshal lifecycle event", "type", string(ev.Type), "error", err)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"event_type": {DataType: aws.String("String"), StringValue: aws.String(string(ev.Type))},
			},
		})
		if err != nil {
			logger.Error("publishing lifecycle event to SQS",
				"type", string(ev.Type), "sequence_id", ev.SequenceID, "error", err)
		}
	}()
}

// Flush waits for in-flight publishes. Called on shutdown.
func (p *Publisher) Flush() {
	p.wg.Wait()
}

// Package dynamo stores the delivery audit trail in DynamoDB.
package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/postify/drip-engine/internal/domain"
)

// API is the subset of the DynamoDB client the log uses.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// item is the table layout: one partition per user, sorted by send time.
type item struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	domain.DeliveryLogEntry
}

const skTimeFormat = "2006-01-02T15:04:05.000000000Z"

func userKey(userID string) string { return "USER#" + userID }

func sortKey(e *domain.DeliveryLogEntry) string {
	return e.SentAt.UTC().Format(skTimeFormat) + "#" + e.ID
}

// DeliveryLog implements drip.DeliveryLog on a DynamoDB table keyed by
// PK (string) and SK (string).
type DeliveryLog struct {
	client    API
	tableName string
}

// New loads the default AWS config for region and returns a log on table.
func New(ctx context.Context, tableName, region string) (*DeliveryLog, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewWithClient(dynamodb.NewFromConfig(cfg), tableName), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, tableName string) *DeliveryLog {
	return &DeliveryLog{client: client, tableName: tableName}
}

func (l *DeliveryLog) Append(ctx context.Context, e *domain.DeliveryLogEntry) error {
	av, err := attributevalue.MarshalMap(item{
		PK:               userKey(e.UserID),
		SK:               sortKey(e),
		DeliveryLogEntry: *e,
	})
	if err != nil {
		return fmt.Errorf("marshaling delivery entry: %w", err)
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("putting delivery entry: %w", err)
	}
	return nil
}

func (l *DeliveryLog) Recent(ctx context.Context, userID string, limit int) ([]domain.DeliveryLogEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(l.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: userKey(userID)},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := l.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("querying delivery log: %w", err)
	}

	out := make([]domain.DeliveryLogEntry, 0, len(result.Items))
	for _, raw := range result.Items {
		var it item
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, fmt.Errorf("unmarshaling delivery entry: %w", err)
		}
		it.DeliveryLogEntry.SentAt = it.DeliveryLogEntry.SentAt.In(time.UTC)
		out = append(out, it.DeliveryLogEntry)
	}
	return out, nil
}

package dynamo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/service/drip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable keeps items per partition and answers descending key queries.
type fakeTable struct {
	mu      sync.Mutex
	items   map[string][]map[string]types.AttributeValue
	putErr  error
	lastPut *dynamodb.PutItemInput
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string][]map[string]types.AttributeValue)}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPut = in
	if f.putErr != nil {
		return nil, f.putErr
	}
	pk := str(in.Item["PK"])
	f.items[pk] = append(f.items[pk], in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk := str(in.ExpressionAttributeValues[":pk"])
	items := append([]map[string]types.AttributeValue(nil), f.items[pk]...)
	sort.Slice(items, func(i, j int) bool { return str(items[i]["SK"]) < str(items[j]["SK"]) })
	if in.ScanIndexForward != nil && !*in.ScanIndexForward {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
	if in.Limit != nil && int(*in.Limit) < len(items) {
		items = items[:*in.Limit]
	}
	return &dynamodb.QueryOutput{Items: items}, nil
}

func TestDeliveryLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	table := newFakeTable()
	dl := NewWithClient(table, "drip_delivery_logs")
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		require.NoError(t, dl.Append(ctx, &domain.DeliveryLogEntry{
			ID:         string(rune('a' + i)),
			UserID:     "u1",
			Template:   "reminder",
			Step:       i + 1,
			SequenceID: "s1",
			Outcome:    domain.OutcomeSuccess,
			Mode:       domain.ModeMock,
			SentAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, dl.Append(ctx, &domain.DeliveryLogEntry{ID: "x", UserID: "u2", SentAt: base}))

	assert.Equal(t, "drip_delivery_logs", aws.ToString(table.lastPut.TableName))
	assert.Equal(t, "attribute_not_exists(PK)", aws.ToString(table.lastPut.ConditionExpression))

	got, err := dl.Recent(ctx, "u1", 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, "g", got[0].ID)
	assert.Equal(t, 7, got[0].Step)
	assert.Equal(t, base.Add(6*time.Hour), got[0].SentAt)
	assert.Equal(t, domain.OutcomeSuccess, got[0].Outcome)
	assert.Equal(t, "c", got[4].ID)
}

func TestDeliveryLogPutError(t *testing.T) {
	table := newFakeTable()
	table.putErr = errors.New("ProvisionedThroughputExceededException")
	dl := NewWithClient(table, "t")

	err := dl.Append(context.Background(), &domain.DeliveryLogEntry{ID: "a", UserID: "u1"})
	assert.ErrorContains(t, err, "putting delivery entry")
}

func TestSortKeyOrdersBySendTime(t *testing.T) {
	early := &domain.DeliveryLogEntry{ID: "z", SentAt: time.Date(2026, 1, 1, 9, 0, 0, 5, time.UTC)}
	late := &domain.DeliveryLogEntry{ID: "a", SentAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	assert.Less(t, sortKey(early), sortKey(late))
}

var _ drip.DeliveryLog = (*DeliveryLog)(nil)

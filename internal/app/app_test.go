package app

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/fieldlink/internal/aws"
	"github.com/imrishuroy/fieldlink/internal/config"
	"github.com/imrishuroy/fieldlink/internal/links"
)

// countingDynamo accepts every write and finds nothing.
type countingDynamo struct {
	mu   sync.Mutex
	puts map[string]int
}

func (d *countingDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{}, nil
}

func (d *countingDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.puts[*in.TableName]++
	return &dynamodb.PutItemOutput{}, nil
}

func (d *countingDynamo) UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	return &dynamodb.UpdateItemOutput{}, nil
}

func (d *countingDynamo) DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *countingDynamo) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func (d *countingDynamo) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func TestWire_IssueWritesThroughEveryTier(t *testing.T) {
	mr := miniredis.RunT(t)
	ddb := &countingDynamo{puts: map[string]int{}}
	cfg := &config.Config{
		AccessCodeKey:    "k",
		PublicBaseURL:    "https://f.example.com",
		PhoneRegion:      "US",
		LinksTable:       "links",
		JobsTable:        "jobs",
		IdempotencyTable: "idem",
		TablePrefix:      "test_",
		RedisAddr:        mr.Addr(),
		MetricsNamespace: "Test",
	}
	s, err := Wire(cfg, &aws.AWSClients{DynamoDB: ddb}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })

	ctx := context.Background()
	data, err := s.Links.Issue(ctx, links.IssueRequest{JobID: "job-1", WorkspaceID: "ws-1", Policy: links.PolicyShort})
	require.NoError(t, err)
	assert.Contains(t, data.URL, "https://f.example.com/j/")

	assert.Equal(t, 1, ddb.puts["test_links"])
	assert.True(t, mr.Exists("fieldlink:links:token:"+data.Token))

	got, err := s.Links.Get(ctx, data.Token)
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
}

func TestWire_WithoutRedis(t *testing.T) {
	cfg := &config.Config{AccessCodeKey: "k", LinksTable: "links"}
	s, err := Wire(cfg, &aws.AWSClients{DynamoDB: &countingDynamo{puts: map[string]int{}}}, nil)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NotNil(t, s.Verifier)
	assert.NotNil(t, s.Idempotency)
}

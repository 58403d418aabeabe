package links

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/fieldlink/internal/aws"
)

// JobIndexName is the GSI on job_id used by ListByJob.
const JobIndexName = "job_id-index"

// DynamoTier is the remote, authoritative link store.
type DynamoTier struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewDynamoTier(client aws.DynamoDBAPI, tableName string) *DynamoTier {
	return &DynamoTier{client: client, tableName: tableName}
}

func (d *DynamoTier) Name() string { return "remote" }

// Get fetches a link by token. Returns (nil, nil) if not found.
func (d *DynamoTier) Get(ctx context.Context, token string) (*MagicLink, error) {
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &d.tableName,
		Key: map[string]types.AttributeValue{
			"token": &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var l MagicLink
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, fmt.Errorf("unmarshal link: %w", err)
	}
	return &l, nil
}

// Put writes the full link item. Rewriting the same item is harmless.
func (d *DynamoTier) Put(ctx context.Context, link *MagicLink) error {
	item, err := attributevalue.MarshalMap(link)
	if err != nil {
		return fmt.Errorf("marshal link: %w", err)
	}
	if _, err := d.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &d.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// ListByJob queries the job_id GSI.
func (d *DynamoTier) ListByJob(ctx context.Context, jobID string) ([]*MagicLink, error) {
	var out []*MagicLink
	var startKey map[string]types.AttributeValue
	for {
		resp, err := d.client.Query(ctx, &dyn.QueryInput{
			TableName:              &d.tableName,
			IndexName:              awsString(JobIndexName),
			KeyConditionExpression: awsString("job_id = :job"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":job": &types.AttributeValueMemberS{Value: jobID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query links by job: %w", err)
		}
		links, err := unmarshalLinks(resp.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, links...)
		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

// List scans active links. Revoked tombstones are filtered server side.
func (d *DynamoTier) List(ctx context.Context) ([]*MagicLink, error) {
	var out []*MagicLink
	var startKey map[string]types.AttributeValue
	for {
		resp, err := d.client.Scan(ctx, &dyn.ScanInput{
			TableName:                &d.tableName,
			FilterExpression:         awsString("#s = :active"),
			ExpressionAttributeNames: map[string]string{"#s": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":active": &types.AttributeValueMemberS{Value: string(StatusActive)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scan links: %w", err)
		}
		links, err := unmarshalLinks(resp.Items)
		if err != nil {
			return nil, err
		}
		out = append(out, links...)
		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		startKey = resp.LastEvaluatedKey
	}
}

func unmarshalLinks(items []map[string]types.AttributeValue) ([]*MagicLink, error) {
	out := make([]*MagicLink, 0, len(items))
	for _, item := range items {
		var l MagicLink
		if err := attributevalue.UnmarshalMap(item, &l); err != nil {
			return nil, fmt.Errorf("unmarshal link: %w", err)
		}
		out = append(out, &l)
	}
	return out, nil
}

func awsString(s string) *string { return &s }

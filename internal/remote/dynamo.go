package remote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/fieldlink/internal/aws"
	"github.com/imrishuroy/fieldlink/internal/errs"
)

// KeyAttribute is the partition key of every entity table.
const KeyAttribute = "id"

// Dynamo implements Backend with one DynamoDB table per entity kind.
type Dynamo struct {
	client   aws.DynamoDBAPI
	tableFor func(kind string) string
	probe    Prober
	nowFunc  func() time.Time
}

// NewDynamo creates a backend. tableFor maps an entity kind to its table
// name. probe may be nil, in which case the backend always reports reachable.
func NewDynamo(client aws.DynamoDBAPI, tableFor func(kind string) string, probe Prober) *Dynamo {
	return &Dynamo{
		client:   client,
		tableFor: tableFor,
		probe:    probe,
		nowFunc:  time.Now,
	}
}

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		KeyAttribute: &types.AttributeValueMemberS{Value: id},
	}
}

// Read fetches a row by id. Returns (nil, nil) if not found.
func (d *Dynamo) Read(ctx context.Context, kind, id string) (map[string]any, error) {
	table := d.tableFor(kind)
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &table,
		Key:       keyOf(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var row map[string]any
	if err := attributevalue.UnmarshalMap(out.Item, &row); err != nil {
		return nil, fmt.Errorf("unmarshal %s row: %w", kind, err)
	}
	return row, nil
}

// Upsert issues a single UpdateItem that SETs every field and stamps
// last_updated. Field order is sorted so identical calls produce identical
// requests.
func (d *Dynamo) Upsert(ctx context.Context, kind, id string, fields map[string]any) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name == KeyAttribute || name == LastUpdatedField {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	attrNames := map[string]string{"#lu": LastUpdatedField}
	attrValues := map[string]types.AttributeValue{
		":lu": &types.AttributeValueMemberS{Value: d.nowFunc().UTC().Format(time.RFC3339Nano)},
	}
	sets := make([]string, 0, len(names)+1)
	for i, name := range names {
		av, err := attributevalue.Marshal(fields[name])
		if err != nil {
			return fmt.Errorf("marshal field %s: %w", name, err)
		}
		n, v := fmt.Sprintf("#f%d", i), fmt.Sprintf(":v%d", i)
		attrNames[n] = name
		attrValues[v] = av
		sets = append(sets, n+" = "+v)
	}
	sets = append(sets, "#lu = :lu")

	table := d.tableFor(kind)
	_, err := d.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &table,
		Key:                       keyOf(id),
		UpdateExpression:          awsString("SET " + strings.Join(sets, ", ")),
		ExpressionAttributeNames:  attrNames,
		ExpressionAttributeValues: attrValues,
	})
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", kind, id, err)
	}
	return nil
}

// Delete removes a row. Deleting a missing row is not an error.
func (d *Dynamo) Delete(ctx context.Context, kind, id string) error {
	table := d.tableFor(kind)
	if _, err := d.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &table,
		Key:       keyOf(id),
	}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", kind, id, err)
	}
	return nil
}

// Fetch scans the kind's table with an equality filter on every key in filter.
func (d *Dynamo) Fetch(ctx context.Context, kind string, filter map[string]any) ([]map[string]any, error) {
	table := d.tableFor(kind)
	input := &dyn.ScanInput{TableName: &table}
	if len(filter) > 0 {
		keys := make([]string, 0, len(filter))
		for k := range filter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		input.ExpressionAttributeNames = map[string]string{}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{}
		conds := make([]string, 0, len(keys))
		for i, k := range keys {
			av, err := attributevalue.Marshal(filter[k])
			if err != nil {
				return nil, fmt.Errorf("marshal filter %s: %w", k, err)
			}
			n, v := fmt.Sprintf("#k%d", i), fmt.Sprintf(":f%d", i)
			input.ExpressionAttributeNames[n] = k
			input.ExpressionAttributeValues[v] = av
			conds = append(conds, n+" = "+v)
		}
		input.FilterExpression = awsString(strings.Join(conds, " AND "))
	}

	var rows []map[string]any
	for {
		resp, err := d.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		for _, item := range resp.Items {
			var row map[string]any
			if err := attributevalue.UnmarshalMap(item, &row); err != nil {
				return nil, fmt.Errorf("unmarshal %s row: %w", kind, err)
			}
			rows = append(rows, row)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			return rows, nil
		}
		input.ExclusiveStartKey = resp.LastEvaluatedKey
	}
}

// Reachable delegates to the configured probe.
func (d *Dynamo) Reachable(ctx context.Context) bool {
	if d.probe == nil {
		return true
	}
	return d.probe.Reachable(ctx)
}

// IsSealed reports whether the job row is marked sealed. Unknown jobs are
// not sealed.
func (d *Dynamo) IsSealed(ctx context.Context, jobID string) (bool, error) {
	row, err := d.Read(ctx, KindJob, jobID)
	if err != nil {
		return false, err
	}
	return rowSealed(row), nil
}

func rowSealed(row map[string]any) bool {
	if row == nil {
		return false
	}
	if b, ok := row["sealed"].(bool); ok && b {
		return true
	}
	s, _ := row["status"].(string)
	return s == "sealed"
}

// Seal marks an existing job immutable. Returns NOT_FOUND when the job row
// does not exist.
func (d *Dynamo) Seal(ctx context.Context, jobID string) error {
	now := d.nowFunc().UTC().Format(time.RFC3339Nano)
	table := d.tableFor(KindJob)
	_, err := d.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &table,
		Key:                      keyOf(jobID),
		UpdateExpression:         awsString("SET sealed = :t, sealed_at = if_not_exists(sealed_at, :now), #lu = :now"),
		ConditionExpression:      awsString("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]string{"#lu": LastUpdatedField},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":now": &types.AttributeValueMemberS{Value: now},
		},
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return errs.NotFound("job")
		}
		return fmt.Errorf("seal job %s: %w", jobID, err)
	}
	return nil
}

func awsString(s string) *string { return &s }

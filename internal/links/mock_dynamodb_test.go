package links

import (
	"context"
	"errors"
	"sort"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// linkTableMock is a small in-memory table keyed by "token" that understands
// the job_id GSI query and the status scan filter used by DynamoTier.
type linkTableMock struct {
	mu       sync.Mutex
	table    map[string]map[string]types.AttributeValue
	putCalls int
	failAll  error
}

func newLinkTableMock() *linkTableMock {
	return &linkTableMock{table: map[string]map[string]types.AttributeValue{}}
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *linkTableMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	k := strAttr(params.Key, "token")
	if k == "" {
		return nil, errors.New("missing key")
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *linkTableMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failAll != nil {
		return nil, m.failAll
	}
	k := strAttr(params.Item, "token")
	if k == "" {
		return nil, errors.New("missing key")
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *linkTableMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("UpdateItem not supported by linkTableMock")
}

func (m *linkTableMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table, strAttr(params.Key, "token"))
	return &dyn.DeleteItemOutput{}, nil
}

func (m *linkTableMock) sortedItems(keep func(map[string]types.AttributeValue) bool) []map[string]types.AttributeValue {
	keys := make([]string, 0, len(m.table))
	for k := range m.table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []map[string]types.AttributeValue
	for _, k := range keys {
		if keep(m.table[k]) {
			out = append(out, m.table[k])
		}
	}
	return out
}

func (m *linkTableMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	job := strAttr(params.ExpressionAttributeValues, ":job")
	items := m.sortedItems(func(it map[string]types.AttributeValue) bool { return strAttr(it, "job_id") == job })
	return &dyn.QueryOutput{Items: items}, nil
}

func (m *linkTableMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	want := strAttr(params.ExpressionAttributeValues, ":active")
	items := m.sortedItems(func(it map[string]types.AttributeValue) bool {
		return want == "" || strAttr(it, "status") == want
	})
	return &dyn.ScanOutput{Items: items}, nil
}

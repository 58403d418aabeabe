package remote

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// tableMock keeps items per table keyed by "id" and understands the
// "SET a = b, ..." and "a = b AND ..." expressions Dynamo builds.
type tableMock struct {
	mu          sync.Mutex
	tables      map[string]map[string]map[string]types.AttributeValue
	updateCalls int
	fail        error
}

func newTableMock() *tableMock {
	return &tableMock{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *tableMock) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := m.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		m.tables[name] = t
	}
	return t
}

func idOf(key map[string]types.AttributeValue) string {
	if v, ok := key["id"].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func resolveName(names map[string]string, n string) string {
	if strings.HasPrefix(n, "#") {
		return names[n]
	}
	return n
}

// splitTopLevel splits on ", " outside parentheses.
func splitTopLevel(expr string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(expr[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(expr[start:]))
}

func (m *tableMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	item, ok := m.table(*params.TableName)[idOf(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *tableMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(*params.TableName)[idOf(params.Item)] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *tableMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.fail != nil {
		return nil, m.fail
	}
	id := idOf(params.Key)
	if id == "" {
		return nil, errors.New("missing key")
	}
	t := m.table(*params.TableName)
	item, exists := t[id]
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_exists(id)" && !exists {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if !exists {
		item = map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
	}
	for _, clause := range splitTopLevel(strings.TrimPrefix(*params.UpdateExpression, "SET ")) {
		parts := strings.SplitN(clause, " = ", 2)
		name := resolveName(params.ExpressionAttributeNames, parts[0])
		val := parts[1]
		if strings.HasPrefix(val, "if_not_exists(") {
			inner := strings.TrimSuffix(strings.TrimPrefix(val, "if_not_exists("), ")")
			args := strings.Split(inner, ", ")
			if _, ok := item[name]; ok {
				continue
			}
			val = args[1]
		}
		item[name] = params.ExpressionAttributeValues[val]
	}
	t[id] = item
	return &dyn.UpdateItemOutput{}, nil
}

func (m *tableMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table(*params.TableName), idOf(params.Key))
	return &dyn.DeleteItemOutput{}, nil
}

func (m *tableMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("Query not supported by tableMock")
}

func (m *tableMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(*params.TableName)
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var conds [][2]string
	if params.FilterExpression != nil {
		for _, c := range strings.Split(*params.FilterExpression, " AND ") {
			parts := strings.SplitN(c, " = ", 2)
			conds = append(conds, [2]string{resolveName(params.ExpressionAttributeNames, parts[0]), parts[1]})
		}
	}
	var items []map[string]types.AttributeValue
	for _, id := range ids {
		item := t[id]
		match := true
		for _, c := range conds {
			got, ok := item[c[0]].(*types.AttributeValueMemberS)
			want, _ := params.ExpressionAttributeValues[c[1]].(*types.AttributeValueMemberS)
			if !ok || want == nil || got.Value != want.Value {
				match = false
				break
			}
		}
		if match {
			items = append(items, item)
		}
	}
	return &dyn.ScanOutput{Items: items}, nil
}

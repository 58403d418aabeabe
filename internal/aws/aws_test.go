package aws

import (
	"context"
	"errors"
	"testing"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/imrishuroy/fieldlink/internal/config"
)

type mockSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.inputs = append(m.inputs, in)
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{}, nil
}

type mockCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.inputs = append(m.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	t.Setenv("AWS_REGION", "")

	cfg, err := LoadAWSConfig(context.Background(), &appconfig.Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Region != "us-east-1" {
		t.Fatalf("expected default region 'us-east-1', got %s", cfg.Region)
	}
	if cfg.BaseEndpoint != nil {
		t.Fatalf("unexpected endpoint override: %s", *cfg.BaseEndpoint)
	}
}

func TestLoadAWSConfig_FromSettings(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), &appconfig.Config{
		AWSRegion:        "eu-west-1",
		EndpointOverride: "http://localhost:4566",
		AWSMaxAttempts:   5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Fatalf("region mismatch, got %s", cfg.Region)
	}
	if cfg.BaseEndpoint == nil || *cfg.BaseEndpoint != "http://localhost:4566" {
		t.Fatalf("endpoint override not applied: %v", cfg.BaseEndpoint)
	}
	if cfg.RetryMaxAttempts != 5 {
		t.Fatalf("retry attempts not applied, got %d", cfg.RetryMaxAttempts)
	}
}

func TestPublisher_Publish(t *testing.T) {
	m := &mockSQS{}
	p := NewPublisher(m, "https://sqs.local/q")

	err := p.Publish(context.Background(), Message{
		Body:       `{"type":"issued"}`,
		EventType:  "issued",
		GroupID:    "job-1",
		DedupID:    "tok1:issued",
		Attributes: map[string]string{"job_id": "", "token": "tok1", AttrEventType: "spoofed"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(m.inputs) != 1 {
		t.Fatalf("expected 1 send, got %d", len(m.inputs))
	}
	in := m.inputs[0]
	if *in.QueueUrl != "https://sqs.local/q" || *in.MessageBody != `{"type":"issued"}` {
		t.Fatalf("unexpected input: %+v", in)
	}
	if _, ok := in.MessageAttributes["job_id"]; ok {
		t.Fatalf("empty attributes must be skipped")
	}
	if v := in.MessageAttributes[AttrEventType].StringValue; v == nil || *v != "issued" {
		t.Fatalf("event_type attribute must come from the event type")
	}
	if v := in.MessageAttributes["token"].StringValue; v == nil || *v != "tok1" {
		t.Fatalf("token attribute missing")
	}
	if in.MessageGroupId != nil || in.MessageDeduplicationId != nil {
		t.Fatalf("standard queue must not carry FIFO fields")
	}
}

func TestPublisher_FIFOQueue(t *testing.T) {
	m := &mockSQS{}
	p := NewPublisher(m, "https://sqs.local/link-events.fifo")

	if err := p.Publish(context.Background(), Message{Body: "{}", EventType: "revoked", GroupID: "job-1", DedupID: "d1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Publish(context.Background(), Message{Body: "{}", EventType: "revoked"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	first, second := m.inputs[0], m.inputs[1]
	if first.MessageGroupId == nil || *first.MessageGroupId != "job-1" {
		t.Fatalf("group id not set: %v", first.MessageGroupId)
	}
	if first.MessageDeduplicationId == nil || *first.MessageDeduplicationId != "d1" {
		t.Fatalf("dedup id not set: %v", first.MessageDeduplicationId)
	}
	if second.MessageGroupId == nil || *second.MessageGroupId != defaultGroupID {
		t.Fatalf("expected default group, got %v", second.MessageGroupId)
	}
	if second.MessageDeduplicationId != nil {
		t.Fatalf("empty dedup id must be left to content-based deduplication")
	}
}

func TestPublisher_Error(t *testing.T) {
	p := NewPublisher(&mockSQS{err: errors.New("boom")}, "q")
	if err := p.Publish(context.Background(), Message{Body: "{}", EventType: "issued"}); err == nil {
		t.Fatal("expected error")
	}
	if err := p.Publish(context.Background(), Message{Body: "{}"}); err == nil {
		t.Fatal("expected error for missing event type")
	}
}

func TestMetricsSink_Count(t *testing.T) {
	cw := &mockCloudWatch{}
	sink := NewMetricsSink(cw, "FieldLink", nil)
	sink.Count(context.Background(), "SyncUpserts", 2)

	if len(cw.inputs) != 1 {
		t.Fatalf("expected 1 put, got %d", len(cw.inputs))
	}
	d := cw.inputs[0].MetricData[0]
	if *d.MetricName != "SyncUpserts" || *d.Value != 2 {
		t.Fatalf("unexpected datum: %+v", d)
	}

	// Failures are swallowed; nil sink is a no-op.
	NewMetricsSink(&mockCloudWatch{err: errors.New("throttled")}, "ns", nil).Count(context.Background(), "x", 1)
	var nilSink *MetricsSink
	nilSink.Count(context.Background(), "x", 1)
}

func TestNewClients_FromStaticConfig(t *testing.T) {
	c := NewClients(sdkaws.Config{Region: "us-west-2"})
	if c.DynamoDB == nil || c.SQS == nil || c.CloudWatch == nil {
		t.Fatalf("expected all clients, got %+v", c)
	}
}

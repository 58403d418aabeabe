package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// AttrEventType is the message attribute consumers filter link events on.
const AttrEventType = "event_type"

const defaultGroupID = "links"

// Message is one link event bound for the events queue.
type Message struct {
	Body      string
	EventType string
	// GroupID orders messages on a FIFO queue; link events use the job id
	// so one job's events are consumed in order.
	GroupID string
	// DedupID is the FIFO deduplication id. Standard queues ignore it.
	DedupID    string
	Attributes map[string]string
}

// Publisher sends link events to one SQS queue. Queues whose URL ends in
// ".fifo" get a message group and deduplication id on every send.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Publish sends msg. The event type always travels as the event_type
// attribute; empty extra attributes are dropped.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if msg.EventType == "" {
		return fmt.Errorf("publish: event type is required")
	}
	input := &sqs.SendMessageInput{
		QueueUrl:          &p.QueueURL,
		MessageBody:       &msg.Body,
		MessageAttributes: messageAttributes(msg),
	}
	if p.fifo {
		group := msg.GroupID
		if group == "" {
			group = defaultGroupID
		}
		input.MessageGroupId = awsString(group)
		if msg.DedupID != "" {
			input.MessageDeduplicationId = awsString(msg.DedupID)
		}
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send %s event: %w", msg.EventType, err)
	}
	return nil
}

func messageAttributes(msg Message) map[string]sqstypes.MessageAttributeValue {
	out := map[string]sqstypes.MessageAttributeValue{
		AttrEventType: stringAttr(msg.EventType),
	}
	for k, v := range msg.Attributes {
		if v == "" || k == AttrEventType {
			continue
		}
		out[k] = stringAttr(v)
	}
	return out
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: awsString("String"), StringValue: awsString(v)}
}

func awsString(s string) *string { return &s }

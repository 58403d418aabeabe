package links

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/aws"
)

// Event types carried on the link events queue.
const (
	EventIssued          = "issued"
	EventRevoked         = "revoked"
	EventStageAdvanced   = "stage_advanced"
	EventFlagged         = "flagged"
	EventDeliveryReceipt = "delivery_receipt"
)

// LinkEvent is published when a link changes and consumed by the worker
// for externally reported milestones (carrier delivery receipts, reports).
type LinkEvent struct {
	Type        string            `json:"type"`
	Token       string            `json:"token"`
	JobID       string            `json:"job_id,omitempty"`
	WorkspaceID string            `json:"workspace_id,omitempty"`
	Stage       Stage             `json:"stage,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// MessagePublisher sends one link event. aws.Publisher satisfies it.
type MessagePublisher interface {
	Publish(ctx context.Context, msg aws.Message) error
}

// emit publishes ev when a publisher is configured. Publishing is best
// effort: link state has already been stored.
func (m *Manager) emit(ctx context.Context, ev LinkEvent) {
	if m.publisher == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		m.logger.Warn("encode link event failed", zap.Error(err))
		return
	}
	msg := aws.Message{
		Body:      string(body),
		EventType: ev.Type,
		GroupID:   ev.JobID,
		DedupID:   ev.Token + ":" + ev.Type + ":" + strconv.FormatInt(ev.OccurredAt.UnixNano(), 10),
		Attributes: map[string]string{
			"job_id":       ev.JobID,
			"token":        ev.Token,
			"workspace_id": ev.WorkspaceID,
		},
	}
	if err := m.publisher.Publish(ctx, msg); err != nil {
		m.logger.Warn("publish link event failed",
			zap.String("event_type", ev.Type), zap.String("token", ev.Token), zap.Error(err))
	}
}

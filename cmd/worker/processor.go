package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/errs"
	"github.com/imrishuroy/fieldlink/internal/links"
	"github.com/imrishuroy/fieldlink/internal/logger"
)

// Processor applies externally reported link milestones.
type Processor struct {
	links  LinkUpdater
	logger *zap.Logger
}

// NewProcessor creates a worker processor over a link manager.
func NewProcessor(l LinkUpdater, log *zap.Logger) *Processor {
	return &Processor{links: l, logger: logger.OrNop(log).Named("worker")}
}

// Handle processes an SQS batch. Messages that fail with a retryable error
// are reported back so only they are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("link event failed", zap.String("message_id", rec.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var ev links.LinkEvent
	if err := json.Unmarshal([]byte(rec.Body), &ev); err != nil {
		// redelivery cannot fix a bad body
		p.logger.Warn("dropping malformed link event", zap.String("message_id", rec.MessageId), zap.Error(err))
		return nil
	}

	var stage links.Stage
	switch ev.Type {
	case links.EventDeliveryReceipt:
		stage = links.StageDelivered
	case links.EventStageAdvanced:
		stage = ev.Stage
	default:
		p.logger.Debug("ignoring link event", zap.String("event_type", ev.Type), zap.String("token", ev.Token))
		return nil
	}
	if ev.Token == "" {
		p.logger.Warn("dropping link event without token", zap.String("event_type", ev.Type))
		return nil
	}

	_, err := p.links.AdvanceLifecycle(ctx, ev.Token, stage, ev.Metadata)
	if err == nil {
		p.logger.Info("lifecycle advanced", zap.String("token", ev.Token), zap.String("stage", string(stage)))
		return nil
	}
	switch errs.CodeOf(err) {
	case errs.CodeStageRegression, errs.CodeNotFound, errs.CodeMissingParams:
		p.logger.Warn("link event not applied", zap.String("token", ev.Token),
			zap.String("stage", string(stage)), zap.Error(err))
		return nil
	}
	return fmt.Errorf("advance %s to %s: %w", ev.Token, stage, err)
}

// Sweep flags every link that has waited too long to be opened.
func (p *Processor) Sweep(ctx context.Context) (int, error) {
	items, err := p.links.FlagStale(ctx)
	if err != nil {
		return 0, fmt.Errorf("flag stale links: %w", err)
	}
	urgent := 0
	for _, it := range items {
		if it.Urgent {
			urgent++
		}
	}
	p.logger.Info("attention sweep finished", zap.Int("flagged", len(items)), zap.Int("urgent", urgent))
	return len(items), nil
}

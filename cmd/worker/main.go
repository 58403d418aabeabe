package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/app"
)

func main() {
	svc, err := app.New(context.Background(), "fieldlink-worker")
	if err != nil {
		log.Fatalf("failed to init services: %v", err)
	}
	defer svc.Close()

	p := NewProcessor(svc.Links, svc.Logger)

	if svc.Config.WorkerMode == ModeSweep {
		if svc.Config.RunLocal {
			if _, err := p.Sweep(context.Background()); err != nil {
				svc.Logger.Fatal("local sweep failed", zap.Error(err))
			}
			return
		}
		lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) error {
			_, err := p.Sweep(ctx)
			return err
		})
		return
	}

	// RUN_LOCAL=true processes a single event from LOCAL_SQS_BODY.
	if svc.Config.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			b, _ := json.Marshal(map[string]string{"type": "delivery_receipt", "token": "local-token"})
			body = string(b)
		}
		resp, _ := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: body}},
		})
		if len(resp.BatchItemFailures) > 0 {
			svc.Logger.Fatal("local handler failed")
		}
		return
	}

	lambda.Start(p.Handle)
}

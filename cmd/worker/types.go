package main

import (
	"context"

	"github.com/imrishuroy/fieldlink/internal/links"
)

// Worker modes selected by WORKER_MODE.
const (
	ModeEvents = "events" // consume link events from SQS
	ModeSweep  = "sweep"  // scheduled attention sweep
)

// LinkUpdater is the part of links.Manager the worker drives.
type LinkUpdater interface {
	AdvanceLifecycle(ctx context.Context, token string, stage links.Stage, metadata map[string]string) (*links.MagicLink, error)
	FlagStale(ctx context.Context) ([]links.AttentionItem, error)
}

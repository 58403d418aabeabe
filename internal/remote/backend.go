// Package remote is the remote persistence backend: entity rows addressed
// by (kind, id) with idempotent field upserts, plus a reachability signal.
package remote

import "context"

// Entity kinds stored remotely.
const (
	KindJob      = "jobs"
	KindEvidence = "evidence"
)

// LastUpdatedField is stamped by the backend on every upsert.
const LastUpdatedField = "last_updated"

// Backend is the contract the sync manager and link manager depend on.
type Backend interface {
	// Read returns (nil, nil) when the row does not exist.
	Read(ctx context.Context, kind, id string) (map[string]any, error)
	// Upsert sets fields on the row, creating it if needed. Repeating the same
	// call leaves the row unchanged apart from LastUpdatedField.
	Upsert(ctx context.Context, kind, id string, fields map[string]any) error
	Delete(ctx context.Context, kind, id string) error
	// Fetch returns rows whose attributes equal every filter value.
	Fetch(ctx context.Context, kind string, filter map[string]any) ([]map[string]any, error)
	Reachable(ctx context.Context) bool
}

// Prober reports whether the remote side can currently be reached.
type Prober interface {
	Reachable(ctx context.Context) bool
}

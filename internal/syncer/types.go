package syncer

import (
	"context"
	"time"
)

// DefaultWindow is the debounce quiet period.
const DefaultWindow = 2 * time.Second

// Key identifies one entity instance.
type Key struct {
	Kind string
	ID   string
}

func (k Key) String() string { return k.Kind + "/" + k.ID }

// PendingWrite is the merged set of unsynced fields for one entity.
type PendingWrite struct {
	Kind          string         `json:"kind"`
	ID            string         `json:"id"`
	Fields        map[string]any `json:"fields"`
	LocalCacheKey string         `json:"local_cache_key,omitempty"`
}

func (w PendingWrite) Key() Key { return Key{Kind: w.Kind, ID: w.ID} }

func (w PendingWrite) clone() PendingWrite {
	w.Fields = mergeFields(nil, w.Fields)
	return w
}

// mergeFields returns a new map holding dst overlaid with src.
func mergeFields(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// State is the per-entity sync indicator.
type State string

const (
	StatePending State = "pending"
	StateSyncing State = "syncing"
	StateSynced  State = "synced"
	StateError   State = "error"
)

// Mode selects how Flush handles pending writes.
type Mode int

const (
	// FlushScheduled is a debounce timer firing for one entity.
	FlushScheduled Mode = iota
	// FlushForced sends every pending write now and waits for the results.
	FlushForced
	// FlushEmergency moves every pending write to the offline queue without
	// touching the network.
	FlushEmergency
)

func (m Mode) String() string {
	switch m {
	case FlushScheduled:
		return "scheduled"
	case FlushForced:
		return "forced"
	case FlushEmergency:
		return "emergency"
	}
	return "unknown"
}

// Remote is the part of the persistence backend the sync manager needs.
// remote.Dynamo and remote.CachedReader satisfy it.
type Remote interface {
	Upsert(ctx context.Context, kind, id string, fields map[string]any) error
	Reachable(ctx context.Context) bool
}

// Invalidator drops read-through cache entries after a successful sync.
type Invalidator interface {
	Invalidate(kind, id string)
}

// Metrics receives counters. aws.MetricsSink satisfies it.
type Metrics interface {
	Count(ctx context.Context, name string, value float64)
}

// Metric names.
const (
	MetricSynced  = "SyncSucceeded"
	MetricFailed  = "SyncFailed"
	MetricQueued  = "SyncQueued"
	MetricDrained = "OfflineQueueDrained"
)

// Flushable is implemented by anything holding writes that must reach
// durable storage before shutdown.
type Flushable interface {
	Flush(ctx context.Context, mode Mode) error
}

// stopper is the part of *time.Timer the manager uses.
type stopper interface {
	Stop() bool
}

// ProcessResult summarizes one offline queue drain.
type ProcessResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

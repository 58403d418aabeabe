package syncer

import (
	"context"
	"sync"

	"github.com/imrishuroy/fieldlink/internal/kv"
)

const queueKey = "sync:offline_queue"

// QueuedWrite is a PendingWrite waiting for connectivity. Rev increases each
// time later fields are merged in, so a drain only removes the version it sent.
type QueuedWrite struct {
	PendingWrite
	Rev int64 `json:"rev"`
}

// OfflineQueue is the durable queue of writes that could not reach the
// remote backend. At most one entry exists per key; enqueuing an existing
// key merges fields with later values winning.
type OfflineQueue struct {
	store kv.Store
	mu    sync.Mutex
}

func NewOfflineQueue(store kv.Store) *OfflineQueue {
	return &OfflineQueue{store: store}
}

func (q *OfflineQueue) load(ctx context.Context) ([]QueuedWrite, error) {
	var entries []QueuedWrite
	if _, err := kv.GetJSON(ctx, q.store, queueKey, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (q *OfflineQueue) save(ctx context.Context, entries []QueuedWrite) error {
	if len(entries) == 0 {
		return q.store.Remove(ctx, queueKey)
	}
	return kv.SetJSON(ctx, q.store, queueKey, entries)
}

// Enqueue merges writes into the queue and persists it.
func (q *OfflineQueue) Enqueue(ctx context.Context, writes ...PendingWrite) error {
	if len(writes) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	for _, w := range writes {
		merged := false
		for i := range entries {
			if entries[i].Key() == w.Key() {
				entries[i].Fields = mergeFields(entries[i].Fields, w.Fields)
				if w.LocalCacheKey != "" {
					entries[i].LocalCacheKey = w.LocalCacheKey
				}
				entries[i].Rev++
				merged = true
				break
			}
		}
		if !merged {
			entries = append(entries, QueuedWrite{PendingWrite: w.clone(), Rev: 1})
		}
	}
	return q.save(ctx, entries)
}

// Entries returns a snapshot of the queue in enqueue order.
func (q *OfflineQueue) Entries(ctx context.Context) ([]QueuedWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Get returns the queued entry for key, if any.
func (q *OfflineQueue) Get(ctx context.Context, key Key) (QueuedWrite, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load(ctx)
	if err != nil {
		return QueuedWrite{}, false, err
	}
	for _, e := range entries {
		if e.Key() == key {
			return e, true, nil
		}
	}
	return QueuedWrite{}, false, nil
}

// Len returns the number of queued writes, or 0 if the store is unreadable.
func (q *OfflineQueue) Len(ctx context.Context) int {
	entries, err := q.Entries(ctx)
	if err != nil {
		return 0
	}
	return len(entries)
}

// Ack removes the given entries unless they were merged into since the
// snapshot was taken.
func (q *OfflineQueue) Ack(ctx context.Context, done []QueuedWrite) error {
	if len(done) == 0 {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	acked := make(map[Key]int64, len(done))
	for _, d := range done {
		acked[d.Key()] = d.Rev
	}
	kept := entries[:0]
	for _, e := range entries {
		if rev, ok := acked[e.Key()]; ok && rev == e.Rev {
			continue
		}
		kept = append(kept, e)
	}
	return q.save(ctx, kept)
}

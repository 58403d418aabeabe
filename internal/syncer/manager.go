// Package syncer coalesces rapid local mutations per entity into a single
// remote upsert after a quiet window, keeps a durable offline queue for
// writes that cannot be delivered, and flushes synchronously on teardown.
//
// Delivery is at least once. The remote upsert must be idempotent.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/errs"
	"github.com/imrishuroy/fieldlink/internal/kv"
	"github.com/imrishuroy/fieldlink/internal/logger"
)

type pendingEntry struct {
	write PendingWrite
	timer stopper
	gen   uint64
}

// Manager is the debounced sync manager for one device.
type Manager struct {
	local       kv.Store
	queue       *OfflineQueue
	remote      Remote
	invalidator Invalidator
	metrics     Metrics
	logger      *zap.Logger

	window      time.Duration
	syncTimeout time.Duration
	afterFunc   func(time.Duration, func()) stopper

	mu       sync.Mutex // guards pending, inflight, states, gen, flightID
	pending  map[Key]*pendingEntry
	inflight map[uint64]PendingWrite // taken from pending, upsert not finished
	states   map[Key]State
	gen      uint64
	flightID uint64

	running sync.WaitGroup // timer-driven syncs

	// netMu serializes network I/O so queue drains and flushes never
	// interleave upserts for the same key.
	netMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

func WithWindow(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.window = d
		}
	}
}

func WithInvalidator(inv Invalidator) Option {
	return func(m *Manager) { m.invalidator = inv }
}

func WithMetrics(mt Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger.OrNop(l).Named("syncer") }
}

// NewManager creates a manager writing locally to local and remotely to r.
// The offline queue is kept in local as well.
func NewManager(local kv.Store, r Remote, opts ...Option) *Manager {
	m := &Manager{
		local:       local,
		queue:       NewOfflineQueue(local),
		remote:      r,
		logger:      zap.NewNop(),
		window:      DefaultWindow,
		syncTimeout: 30 * time.Second,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		pending:  map[Key]*pendingEntry{},
		inflight: map[uint64]PendingWrite{},
		states:   map[Key]State{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Queue exposes the durable offline queue.
func (m *Manager) Queue() *OfflineQueue { return m.queue }

// ScheduleUpdate merges fields into the pending write for (kind, id) and
// restarts its quiet-window timer. When localCacheKey is set the fields are
// applied to the local cache immediately.
func (m *Manager) ScheduleUpdate(ctx context.Context, kind, id string, fields map[string]any, localCacheKey string) error {
	if kind == "" || id == "" {
		return errs.New(errs.CodeMissingParams, "entity kind and id are required")
	}
	if localCacheKey != "" {
		m.applyLocal(ctx, localCacheKey, fields)
	}

	key := Key{Kind: kind, ID: id}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.pending[key]
	if !ok {
		e = &pendingEntry{write: PendingWrite{Kind: kind, ID: id}}
		m.pending[key] = e
	}
	e.write.Fields = mergeFields(e.write.Fields, fields)
	if localCacheKey != "" {
		e.write.LocalCacheKey = localCacheKey
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	m.gen++
	gen := m.gen
	e.gen = gen
	e.timer = m.afterFunc(m.window, func() { m.fire(key, gen) })
	m.states[key] = StatePending
	return nil
}

// applyLocal overlays fields on the cached JSON object at key. Failures are
// logged and ignored.
func (m *Manager) applyLocal(ctx context.Context, key string, fields map[string]any) {
	cached := map[string]any{}
	if _, err := kv.GetJSON(ctx, m.local, key, &cached); err != nil {
		m.logger.Warn("read local cache failed", zap.String("key", key), zap.Error(err))
		cached = map[string]any{}
	}
	if err := kv.SetJSON(ctx, m.local, key, mergeFields(cached, fields)); err != nil {
		m.logger.Warn("write local cache failed", zap.String("key", key), zap.Error(err))
	}
}

// fire runs when a debounce timer expires. Timers superseded by a later
// mutation or already taken by a flush are ignored.
func (m *Manager) fire(key Key, gen uint64) {
	m.mu.Lock()
	e, ok := m.pending[key]
	if !ok || e.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.pending, key)
	ids := m.trackLocked([]PendingWrite{e.write})
	m.running.Add(1)
	m.mu.Unlock()
	defer m.running.Done()
	defer m.release(ids)

	ctx, cancel := context.WithTimeout(context.Background(), m.syncTimeout)
	defer cancel()
	if err := m.flushWrites(ctx, FlushScheduled, []PendingWrite{e.write}); err != nil {
		m.logger.Warn("scheduled sync failed", zap.String("entity", key.String()), zap.Error(err))
	}
}

// takeLocked removes every pending write and stops its timer. m.mu must be
// held.
func (m *Manager) takeLocked() []PendingWrite {
	out := make([]PendingWrite, 0, len(m.pending))
	for key, e := range m.pending {
		if e.timer != nil {
			e.timer.Stop()
		}
		out = append(out, e.write)
		delete(m.pending, key)
	}
	return out
}

// trackLocked records writes as in flight until release is called with the
// returned ids. m.mu must be held.
func (m *Manager) trackLocked(writes []PendingWrite) []uint64 {
	ids := make([]uint64, 0, len(writes))
	for _, w := range writes {
		m.flightID++
		m.inflight[m.flightID] = w.clone()
		ids = append(ids, m.flightID)
	}
	return ids
}

func (m *Manager) release(ids []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.inflight, id)
	}
}

// Flush drains all pending writes according to mode. FlushScheduled and
// FlushForced both attempt the network; only FlushEmergency skips it and
// also queues writes whose upsert is still running.
func (m *Manager) Flush(ctx context.Context, mode Mode) error {
	m.mu.Lock()
	if mode == FlushEmergency {
		writes := make([]PendingWrite, 0, len(m.inflight)+len(m.pending))
		for _, id := range sortedIDs(m.inflight) {
			writes = append(writes, m.inflight[id].clone())
		}
		writes = append(writes, m.takeLocked()...)
		m.mu.Unlock()
		return m.flushWrites(ctx, mode, writes)
	}
	writes := m.takeLocked()
	ids := m.trackLocked(writes)
	m.mu.Unlock()
	defer m.release(ids)
	return m.flushWrites(ctx, mode, writes)
}

// sortedIDs returns the in-flight ids oldest first, so later writes win when
// the queue merges them.
func sortedIDs(inflight map[uint64]PendingWrite) []uint64 {
	ids := make([]uint64, 0, len(inflight))
	for id := range inflight {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// FlushAll cancels all timers and syncs every pending write now.
func (m *Manager) FlushAll(ctx context.Context) error {
	return m.Flush(ctx, FlushForced)
}

// Drain syncs every pending write now and waits for timer-driven syncs
// that were already running.
func (m *Manager) Drain(ctx context.Context) error {
	err := m.FlushAll(ctx)
	m.running.Wait()
	return err
}

// EmergencyFlush moves every pending and in-flight write into the offline
// queue without any network I/O. It returns once the queue is persisted.
func (m *Manager) EmergencyFlush() error {
	return m.Flush(context.Background(), FlushEmergency)
}

func (m *Manager) flushWrites(ctx context.Context, mode Mode, writes []PendingWrite) error {
	if len(writes) == 0 {
		return nil
	}
	if mode == FlushEmergency {
		if err := m.queue.Enqueue(ctx, writes...); err != nil {
			m.logger.Error("emergency flush lost writes", zap.Int("count", len(writes)), zap.Error(err))
			return errs.Newf(errs.CodeSyncFailed, "persist offline queue: %v", err)
		}
		m.count(ctx, MetricQueued, float64(len(writes)))
		m.logger.Info("emergency flush queued writes", zap.Int("count", len(writes)))
		return nil
	}

	var failed int
	for _, w := range writes {
		if !m.executeSync(ctx, w) {
			failed++
		}
	}
	if failed > 0 {
		return errs.Newf(errs.CodeSyncFailed, "%d of %d writes queued for retry", failed, len(writes))
	}
	return nil
}

// executeSync sends one write. A queued write for the same key is folded in
// underneath it and acknowledged on success, so an older queued value is
// never replayed over this one. When the remote is unreachable or the
// upsert fails the write goes to the offline queue. Reports whether it was
// delivered.
func (m *Manager) executeSync(ctx context.Context, w PendingWrite) bool {
	m.netMu.Lock()
	defer m.netMu.Unlock()

	key := w.Key()
	if !m.remote.Reachable(ctx) {
		m.enqueue(ctx, w, StatePending)
		return false
	}
	fields := w.Fields
	queued, hasQueued, err := m.queue.Get(ctx, key)
	if err != nil {
		// an unreadable queue cannot be replayed either
		m.logger.Warn("read offline queue failed", zap.String("entity", key.String()), zap.Error(err))
	}
	if hasQueued {
		fields = mergeFields(queued.Fields, w.Fields)
	}
	m.setState(key, StateSyncing)
	if err := m.remote.Upsert(ctx, w.Kind, w.ID, fields); err != nil {
		m.logger.Warn("remote upsert failed, queued for retry",
			zap.String("entity", key.String()), zap.Error(err))
		m.count(ctx, MetricFailed, 1)
		m.enqueue(ctx, w, StateError)
		return false
	}
	if hasQueued {
		if err := m.queue.Ack(ctx, []QueuedWrite{queued}); err != nil {
			m.logger.Warn("ack folded queue entry failed", zap.String("entity", key.String()), zap.Error(err))
		}
	}
	if m.invalidator != nil {
		m.invalidator.Invalidate(w.Kind, w.ID)
	}
	m.count(ctx, MetricSynced, 1)
	m.setStateUnlessPending(key, StateSynced)
	return true
}

func (m *Manager) enqueue(ctx context.Context, w PendingWrite, state State) {
	if err := m.queue.Enqueue(ctx, w); err != nil {
		m.logger.Error("offline queue write failed", zap.String("entity", w.Key().String()), zap.Error(err))
		m.setState(w.Key(), StateError)
		return
	}
	m.count(ctx, MetricQueued, 1)
	m.setStateUnlessPending(w.Key(), state)
}

// ProcessOfflineQueue attempts every queued write once. Delivered writes
// are removed; failures stay queued. Nothing is attempted while offline.
func (m *Manager) ProcessOfflineQueue(ctx context.Context) (ProcessResult, error) {
	m.netMu.Lock()
	defer m.netMu.Unlock()

	var res ProcessResult
	entries, err := m.queue.Entries(ctx)
	if err != nil {
		return res, fmt.Errorf("read offline queue: %w", err)
	}
	if len(entries) == 0 || !m.remote.Reachable(ctx) {
		return res, nil
	}

	var done []QueuedWrite
	var errList []error
	for _, e := range entries {
		res.Attempted++
		key := e.Key()
		m.setState(key, StateSyncing)
		if err := m.remote.Upsert(ctx, e.Kind, e.ID, e.Fields); err != nil {
			res.Failed++
			errList = append(errList, fmt.Errorf("%s: %w", key, err))
			m.setState(key, StateError)
			continue
		}
		if m.invalidator != nil {
			m.invalidator.Invalidate(e.Kind, e.ID)
		}
		res.Succeeded++
		done = append(done, e)
		m.setStateUnlessPending(key, StateSynced)
	}
	if err := m.queue.Ack(ctx, done); err != nil {
		return res, fmt.Errorf("update offline queue: %w", err)
	}
	m.count(ctx, MetricDrained, float64(res.Succeeded))
	if len(errList) > 0 {
		m.logger.Warn("offline queue partially drained",
			zap.Int("succeeded", res.Succeeded), zap.Int("failed", res.Failed), zap.Error(errors.Join(errList...)))
	}
	return res, nil
}

// Reconnected is called when connectivity returns.
func (m *Manager) Reconnected(ctx context.Context) (ProcessResult, error) {
	res, err := m.ProcessOfflineQueue(ctx)
	if err == nil && res.Attempted > 0 {
		m.logger.Info("offline queue replayed",
			zap.Int("attempted", res.Attempted), zap.Int("succeeded", res.Succeeded))
	}
	return res, err
}

// Status returns the sync indicator for an entity. Entities never scheduled
// report synced.
func (m *Manager) Status(kind, id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[Key{Kind: kind, ID: id}]; ok {
		return s
	}
	return StateSynced
}

// PendingCount returns the number of entities waiting for their timer.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) setState(key Key, s State) {
	m.mu.Lock()
	m.states[key] = s
	m.mu.Unlock()
}

// setStateUnlessPending keeps StatePending when a newer mutation for key
// arrived while the previous write was in flight.
func (m *Manager) setStateUnlessPending(key Key, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pending[key]; ok {
		m.states[key] = StatePending
		return
	}
	m.states[key] = s
}

func (m *Manager) count(ctx context.Context, name string, v float64) {
	if m.metrics != nil {
		m.metrics.Count(ctx, name, v)
	}
}

var _ Flushable = (*Manager)(nil)

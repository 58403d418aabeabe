package handshake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/imrishuroy/fieldlink/internal/kv"
)

// LockStore persists the single handshake lock owned by one device.
type LockStore interface {
	// Load returns the committed context, or (nil, nil) when none exists.
	Load(ctx context.Context) (*Context, error)
	Save(ctx context.Context, c Context) error
	Clear(ctx context.Context) error
	// Locked reads only the lock flag and its timestamp.
	Locked(ctx context.Context) (bool, time.Time, error)
}

const (
	keyContext  = "handshake:context"
	keyLocked   = "handshake:locked"
	keyLockedAt = "handshake:locked_at"
)

// KVLockStore keeps the lock in a kv.Store under three keys: the full
// context and a separate flag/timestamp pair for cheap checks.
type KVLockStore struct {
	store   kv.Store
	nowFunc func() time.Time
}

func NewKVLockStore(store kv.Store) *KVLockStore {
	return &KVLockStore{store: store, nowFunc: time.Now}
}

func (s *KVLockStore) Load(ctx context.Context) (*Context, error) {
	var c Context
	ok, err := kv.GetJSON(ctx, s.store, keyContext, &c)
	if err != nil {
		return nil, fmt.Errorf("load handshake: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *KVLockStore) Save(ctx context.Context, c Context) error {
	if err := kv.SetJSON(ctx, s.store, keyContext, c); err != nil {
		return fmt.Errorf("save handshake: %w", err)
	}
	if err := s.store.Set(ctx, keyLocked, strconv.FormatBool(c.IsLocked)); err != nil {
		return fmt.Errorf("save lock flag: %w", err)
	}
	at := strconv.FormatInt(s.nowFunc().UnixMilli(), 10)
	if err := s.store.Set(ctx, keyLockedAt, at); err != nil {
		return fmt.Errorf("save lock time: %w", err)
	}
	return nil
}

func (s *KVLockStore) Clear(ctx context.Context) error {
	var errList []error
	for _, k := range []string{keyContext, keyLocked, keyLockedAt} {
		if err := s.store.Remove(ctx, k); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func (s *KVLockStore) Locked(ctx context.Context) (bool, time.Time, error) {
	flag, ok, err := s.store.Get(ctx, keyLocked)
	if err != nil || !ok {
		return false, time.Time{}, err
	}
	locked, _ := strconv.ParseBool(flag)

	var at time.Time
	if raw, ok, err := s.store.Get(ctx, keyLockedAt); err == nil && ok {
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			at = time.UnixMilli(ms)
		}
	}
	return locked, at, nil
}

// Package kv provides the local persistent key-value contract used by the
// handshake lock, the durable link tier and the offline sync queue.
//
// Implementations may fail (disk full, store disabled, connection lost);
// callers are expected to tolerate errors rather than crash.
package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is a string key-value store.
type Store interface {
	// Get returns (value, true, nil) when present and ("", false, nil) when absent.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// GetJSON loads key into dest. Returns false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, dest any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(b))
}

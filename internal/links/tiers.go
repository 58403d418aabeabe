package links

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/imrishuroy/fieldlink/internal/kv"
)

// Tier is one storage level behind the Resolver.
type Tier interface {
	Name() string
	// Get returns (nil, nil) when the token is unknown to this tier.
	Get(ctx context.Context, token string) (*MagicLink, error)
	Put(ctx context.Context, link *MagicLink) error
	ListByJob(ctx context.Context, jobID string) ([]*MagicLink, error)
	List(ctx context.Context) ([]*MagicLink, error)
}

// DefaultMemoryTTL bounds how long another instance's change can stay
// invisible to plain reads served from the memory tier.
const DefaultMemoryTTL = 30 * time.Second

// MemoryTier is a bounded in-process LRU of links whose entries expire
// after a TTL.
type MemoryTier struct {
	cache *expirable.LRU[string, *MagicLink]
}

// NewMemoryTier creates a memory tier holding up to size links for ttl each.
// A ttl <= 0 uses DefaultMemoryTTL.
func NewMemoryTier(size int, ttl time.Duration) (*MemoryTier, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory tier size must be positive, got %d", size)
	}
	if ttl <= 0 {
		ttl = DefaultMemoryTTL
	}
	return &MemoryTier{cache: expirable.NewLRU[string, *MagicLink](size, nil, ttl)}, nil
}

func (m *MemoryTier) Name() string { return "memory" }

func (m *MemoryTier) Get(_ context.Context, token string) (*MagicLink, error) {
	l, ok := m.cache.Get(token)
	if !ok {
		return nil, nil
	}
	return l.clone(), nil
}

func (m *MemoryTier) Put(_ context.Context, link *MagicLink) error {
	m.cache.Add(link.Token, link.clone())
	return nil
}

func (m *MemoryTier) ListByJob(_ context.Context, jobID string) ([]*MagicLink, error) {
	var out []*MagicLink
	for _, l := range m.cache.Values() {
		if l.JobID == jobID {
			out = append(out, l.clone())
		}
	}
	return out, nil
}

func (m *MemoryTier) List(_ context.Context) ([]*MagicLink, error) {
	values := m.cache.Values()
	out := make([]*MagicLink, 0, len(values))
	for _, l := range values {
		out = append(out, l.clone())
	}
	return out, nil
}

// KVTier stores links as JSON in a kv.Store, with a per-job token index and
// a global token index.
type KVTier struct {
	store kv.Store
	mu    sync.Mutex // guards index read-modify-write
}

func NewKVTier(store kv.Store) *KVTier {
	return &KVTier{store: store}
}

const kvAllIndex = "links:index"

func kvLinkKey(token string) string  { return "links:token:" + token }
func kvJobIndex(jobID string) string { return "links:job:" + jobID }

func (t *KVTier) Name() string { return "local" }

func (t *KVTier) Get(ctx context.Context, token string) (*MagicLink, error) {
	var l MagicLink
	ok, err := kv.GetJSON(ctx, t.store, kvLinkKey(token), &l)
	if err != nil || !ok {
		return nil, err
	}
	return &l, nil
}

func (t *KVTier) Put(ctx context.Context, link *MagicLink) error {
	if err := kv.SetJSON(ctx, t.store, kvLinkKey(link.Token), link); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.addToIndex(ctx, kvJobIndex(link.JobID), link.Token); err != nil {
		return err
	}
	return t.addToIndex(ctx, kvAllIndex, link.Token)
}

func (t *KVTier) addToIndex(ctx context.Context, key, token string) error {
	var tokens []string
	if _, err := kv.GetJSON(ctx, t.store, key, &tokens); err != nil {
		return err
	}
	for _, existing := range tokens {
		if existing == token {
			return nil
		}
	}
	return kv.SetJSON(ctx, t.store, key, append(tokens, token))
}

func (t *KVTier) ListByJob(ctx context.Context, jobID string) ([]*MagicLink, error) {
	return t.listIndex(ctx, kvJobIndex(jobID))
}

func (t *KVTier) List(ctx context.Context) ([]*MagicLink, error) {
	return t.listIndex(ctx, kvAllIndex)
}

func (t *KVTier) listIndex(ctx context.Context, key string) ([]*MagicLink, error) {
	var tokens []string
	if _, err := kv.GetJSON(ctx, t.store, key, &tokens); err != nil {
		return nil, err
	}
	out := make([]*MagicLink, 0, len(tokens))
	for _, tok := range tokens {
		l, err := t.Get(ctx, tok)
		if err != nil {
			return nil, err
		}
		if l != nil {
			out = append(out, l)
		}
	}
	return out, nil
}

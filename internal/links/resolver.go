package links

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/logger"
)

// Resolver is a read-through/write-through cache over an ordered list of
// tiers (memory, then durable local, then remote). The last tier is
// authoritative: only its write failures are reported to callers.
type Resolver struct {
	tiers  []Tier
	logger *zap.Logger
}

func NewResolver(log *zap.Logger, tiers ...Tier) *Resolver {
	return &Resolver{tiers: tiers, logger: logger.OrNop(log).Named("links.resolver")}
}

// Resolve looks token up tier by tier. A hit in a lower tier is copied
// into the tiers above it. Returns (nil, nil) when no tier knows the token,
// and an error only when every tier failed.
func (r *Resolver) Resolve(ctx context.Context, token string) (*MagicLink, error) {
	var errList []error
	for i, t := range r.tiers {
		l, err := t.Get(ctx, token)
		if err != nil {
			r.logger.Warn("tier lookup failed", zap.String("tier", t.Name()), zap.Error(err))
			errList = append(errList, err)
			continue
		}
		if l == nil {
			continue
		}
		for _, upper := range r.tiers[:i] {
			if err := upper.Put(ctx, l); err != nil {
				r.logger.Warn("tier backfill failed", zap.String("tier", upper.Name()), zap.Error(err))
			}
		}
		return l, nil
	}
	if len(r.tiers) > 0 && len(errList) == len(r.tiers) {
		return nil, fmt.Errorf("resolve link: %w", errors.Join(errList...))
	}
	return nil, nil
}

// ResolveAuthoritative reads token from the last tier only and refreshes
// the tiers above it with what it found. Access decisions and
// read-modify-write updates use it so a stale cached copy never wins.
func (r *Resolver) ResolveAuthoritative(ctx context.Context, token string) (*MagicLink, error) {
	if len(r.tiers) == 0 {
		return nil, nil
	}
	last := len(r.tiers) - 1
	l, err := r.tiers[last].Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("resolve link from %s tier: %w", r.tiers[last].Name(), err)
	}
	if l == nil {
		return nil, nil
	}
	for _, upper := range r.tiers[:last] {
		if err := upper.Put(ctx, l); err != nil {
			r.logger.Warn("tier refresh failed", zap.String("tier", upper.Name()), zap.Error(err))
		}
	}
	return l, nil
}

// Store writes link through every tier.
func (r *Resolver) Store(ctx context.Context, link *MagicLink) error {
	var authoritative error
	for i, t := range r.tiers {
		err := t.Put(ctx, link)
		if err == nil {
			continue
		}
		if i == len(r.tiers)-1 {
			authoritative = fmt.Errorf("store link in %s tier: %w", t.Name(), err)
			continue
		}
		r.logger.Warn("tier write failed", zap.String("tier", t.Name()), zap.Error(err))
	}
	return authoritative
}

// ListByJob merges the links every tier knows for jobID. When the same token
// appears in several tiers, the highest-priority copy wins.
func (r *Resolver) ListByJob(ctx context.Context, jobID string) ([]*MagicLink, error) {
	return r.merge(func(t Tier) ([]*MagicLink, error) { return t.ListByJob(ctx, jobID) })
}

// List merges every link known to any tier.
func (r *Resolver) List(ctx context.Context) ([]*MagicLink, error) {
	return r.merge(func(t Tier) ([]*MagicLink, error) { return t.List(ctx) })
}

func (r *Resolver) merge(list func(Tier) ([]*MagicLink, error)) ([]*MagicLink, error) {
	seen := map[string]bool{}
	var out []*MagicLink
	var errList []error
	for _, t := range r.tiers {
		links, err := list(t)
		if err != nil {
			r.logger.Warn("tier list failed", zap.String("tier", t.Name()), zap.Error(err))
			errList = append(errList, err)
			continue
		}
		for _, l := range links {
			if seen[l.Token] {
				continue
			}
			seen[l.Token] = true
			out = append(out, l)
		}
	}
	if len(errList) == len(r.tiers) && len(r.tiers) > 0 {
		return nil, fmt.Errorf("list links: %w", errors.Join(errList...))
	}
	return out, nil
}

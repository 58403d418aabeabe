package links

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	// AttentionWarn is how long a sent link may go unopened before it is listed.
	AttentionWarn = 2 * time.Hour
	// AttentionUrgent marks listed links as urgent.
	AttentionUrgent = 4 * time.Hour
)

// Flag reasons written by FlagStale.
const (
	FlagReasonNotOpened       = "not_opened"
	FlagReasonNotOpenedUrgent = "not_opened_urgent"
)

// FindNeedingAttention lists links that were sent but not opened within
// AttentionWarn, oldest first. Revoked, expired, sealed and acknowledged
// links are skipped.
func (m *Manager) FindNeedingAttention(ctx context.Context) ([]AttentionItem, error) {
	all, err := m.resolver.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("find needing attention: %w", err)
	}
	now := m.nowFunc()
	var out []AttentionItem
	for _, l := range all {
		if l.FirstAccessedAt != nil || l.LifecycleStage.Rank() >= StageOpened.Rank() {
			continue
		}
		if l.FlagAcknowledgedAt != nil || l.Status == StatusRevoked || now.After(l.ExpiresAt) {
			continue
		}
		since := l.CreatedAt
		if l.SentAt != nil {
			since = *l.SentAt
		}
		age := now.Sub(since)
		if age < AttentionWarn {
			continue
		}
		if m.isSealed(ctx, l.JobID) {
			continue
		}
		out = append(out, AttentionItem{Link: l, Age: age, Urgent: age >= AttentionUrgent})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Age != out[j].Age {
			return out[i].Age > out[j].Age
		}
		return out[i].Link.Token < out[j].Link.Token
	})
	return out, nil
}

// FlagStale persists a flag on every link FindNeedingAttention returns that
// is not flagged yet, upgrading the reason once a link turns urgent.
func (m *Manager) FlagStale(ctx context.Context) ([]AttentionItem, error) {
	items, err := m.FindNeedingAttention(ctx)
	if err != nil {
		return nil, err
	}
	now := m.nowFunc()
	for _, it := range items {
		reason := FlagReasonNotOpened
		if it.Urgent {
			reason = FlagReasonNotOpenedUrgent
		}
		if it.Link.FlaggedAt != nil && it.Link.FlagReason == reason {
			continue
		}
		if it.Link.FlaggedAt == nil {
			it.Link.FlaggedAt = timePtr(now)
		}
		it.Link.FlagReason = reason
		if err := m.resolver.Store(ctx, it.Link); err != nil {
			m.logger.Warn("persist flag failed", zap.String("token", it.Link.Token), zap.Error(err))
			continue
		}
		m.emit(ctx, LinkEvent{Type: EventFlagged, Token: it.Link.Token, JobID: it.Link.JobID,
			WorkspaceID: it.Link.WorkspaceID, Metadata: map[string]string{"reason": reason}, OccurredAt: now})
	}
	return items, nil
}

// Flag marks a link for attention with a caller-supplied reason.
func (m *Manager) Flag(ctx context.Context, token, reason string) (*MagicLink, error) {
	l, err := m.load(ctx, token)
	if err != nil {
		return nil, err
	}
	now := m.nowFunc()
	l.FlaggedAt = timePtr(now)
	l.FlagReason = reason
	l.FlagAcknowledgedAt = nil
	if err := m.resolver.Store(ctx, l); err != nil {
		return nil, fmt.Errorf("flag link: %w", err)
	}
	m.emit(ctx, LinkEvent{Type: EventFlagged, Token: l.Token, JobID: l.JobID,
		WorkspaceID: l.WorkspaceID, Metadata: map[string]string{"reason": reason}, OccurredAt: now})
	return l, nil
}

// AcknowledgeFlag records that someone looked at the link; it then drops
// out of FindNeedingAttention.
func (m *Manager) AcknowledgeFlag(ctx context.Context, token string) (*MagicLink, error) {
	l, err := m.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if l.FlagAcknowledgedAt != nil {
		return l, nil
	}
	l.FlagAcknowledgedAt = timePtr(m.nowFunc())
	if err := m.resolver.Store(ctx, l); err != nil {
		return nil, fmt.Errorf("acknowledge flag: %w", err)
	}
	return l, nil
}

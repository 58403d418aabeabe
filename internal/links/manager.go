// Package links issues and tracks per-job magic-link tokens: expiry
// policies, revocation, regeneration, delivery-to-completion lifecycle and
// attention flagging for links nobody opened.
package links

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/accesscode"
	"github.com/imrishuroy/fieldlink/internal/errs"
	"github.com/imrishuroy/fieldlink/internal/logger"
)

// JobSealChecker reports whether a job's evidence is sealed (immutable).
type JobSealChecker interface {
	IsSealed(ctx context.Context, jobID string) (bool, error)
}

// ManagerConfig groups optional collaborators for the Manager.
type ManagerConfig struct {
	BaseURL     string
	PhoneRegion string

	Codec     *accesscode.Codec // embeds access codes in issued URLs
	Sealed    JobSealChecker
	Publisher MessagePublisher
	Locker    Locker
	Logger    *zap.Logger
}

// Manager is the link lifecycle manager.
type Manager struct {
	resolver    *Resolver
	codec       *accesscode.Codec
	sealed      JobSealChecker
	publisher   MessagePublisher
	locker      Locker
	baseURL     string
	phoneRegion string
	logger      *zap.Logger
	nowFunc     func() time.Time
	newToken    func() string
}

func NewManager(resolver *Resolver, cfg ManagerConfig) *Manager {
	region := cfg.PhoneRegion
	if region == "" {
		region = "US"
	}
	return &Manager{
		resolver:    resolver,
		codec:       cfg.Codec,
		sealed:      cfg.Sealed,
		publisher:   cfg.Publisher,
		locker:      cfg.Locker,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		phoneRegion: region,
		logger:      logger.OrNop(cfg.Logger).Named("links"),
		nowFunc:     time.Now,
		newToken:    func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Issue creates a new token for a job.
func (m *Manager) Issue(ctx context.Context, req IssueRequest) (*LinkData, error) {
	if strings.TrimSpace(req.JobID) == "" || strings.TrimSpace(req.WorkspaceID) == "" {
		return nil, errs.New(errs.CodeMissingParams, "job id and workspace id are required")
	}
	policy, err := ParsePolicy(string(req.Policy))
	if err != nil {
		return nil, err
	}

	now := m.nowFunc()
	link := &MagicLink{
		Token:            m.newToken(),
		JobID:            req.JobID,
		WorkspaceID:      req.WorkspaceID,
		Policy:           policy,
		ExpiresAt:        now.Add(policy.TTL()),
		Status:           StatusActive,
		CreatedAt:        now,
		AssignedToTechID: req.AssignedToTechID,
	}

	data := &LinkData{Token: link.Token, ExpiresAt: link.ExpiresAt}
	if req.DeliveryContact != "" && m.codec != nil {
		contact := accesscode.NormalizeContact(req.DeliveryContact, m.phoneRegion)
		secondary := accesscode.NormalizeContact(req.SecondaryContact, m.phoneRegion)
		code, err := m.codec.Encode(req.JobID, contact, secondary)
		if err != nil {
			return nil, err
		}
		data.AccessCode = code
	}
	data.URL = m.linkURL(link.Token, data.AccessCode)

	if err := m.resolver.Store(ctx, link); err != nil {
		return nil, fmt.Errorf("issue link: %w", err)
	}
	m.logger.Info("link issued", zap.String("job_id", link.JobID), zap.String("policy", string(policy)),
		zap.Time("expires_at", link.ExpiresAt))
	m.emit(ctx, LinkEvent{Type: EventIssued, Token: link.Token, JobID: link.JobID,
		WorkspaceID: link.WorkspaceID, OccurredAt: now})
	return data, nil
}

func (m *Manager) linkURL(token, code string) string {
	u := fmt.Sprintf("%s/j/%s", m.baseURL, url.PathEscape(token))
	if code != "" {
		u += "?code=" + url.QueryEscape(code)
	}
	return u
}

// Get returns the stored link or NOT_FOUND. It may be served from a cache
// tier and lag changes made by another instance by up to the cache TTL.
func (m *Manager) Get(ctx context.Context, token string) (*MagicLink, error) {
	l, err := m.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, errs.NotFound("link")
	}
	return l, nil
}

// load reads the authoritative copy of token, or NOT_FOUND.
func (m *Manager) load(ctx context.Context, token string) (*MagicLink, error) {
	l, err := m.resolver.ResolveAuthoritative(ctx, token)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, errs.NotFound("link")
	}
	return l, nil
}

// Revoke tombstones token. Revoking an already revoked token is a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	l, err := m.load(ctx, token)
	if err != nil {
		return err
	}
	return m.revoke(ctx, l)
}

func (m *Manager) revoke(ctx context.Context, l *MagicLink) error {
	if l.Status == StatusRevoked {
		return nil
	}
	now := m.nowFunc()
	l.Status = StatusRevoked
	l.RevokedAt = timePtr(now)
	if err := m.resolver.Store(ctx, l); err != nil {
		return fmt.Errorf("revoke link: %w", err)
	}
	m.logger.Info("link revoked", zap.String("job_id", l.JobID), zap.String("token", l.Token))
	m.emit(ctx, LinkEvent{Type: EventRevoked, Token: l.Token, JobID: l.JobID,
		WorkspaceID: l.WorkspaceID, OccurredAt: now})
	return nil
}

// RevokeAll revokes every live token for jobID and returns how many changed.
func (m *Manager) RevokeAll(ctx context.Context, jobID string) (int, error) {
	all, err := m.resolver.ListByJob(ctx, jobID)
	if err != nil {
		return 0, fmt.Errorf("revoke all: %w", err)
	}
	n := 0
	for _, listed := range all {
		l, err := m.load(ctx, listed.Token)
		if errs.Is(err, errs.CodeNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if l.Status == StatusRevoked {
			continue
		}
		if err := m.revoke(ctx, l); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Regenerate revokes every token for the job and issues a fresh one, so at
// most one token per job is alive afterwards.
func (m *Manager) Regenerate(ctx context.Context, req IssueRequest) (*LinkData, error) {
	if m.locker != nil {
		release, err := m.locker.Lock(ctx, "links:regenerate:"+req.JobID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(ctx); err != nil {
				m.logger.Warn("release regenerate lock failed", zap.String("job_id", req.JobID), zap.Error(err))
			}
		}()
	}
	if _, err := m.RevokeAll(ctx, req.JobID); err != nil {
		return nil, err
	}
	return m.Issue(ctx, req)
}

// Extend moves the expiry to now + policy.
func (m *Manager) Extend(ctx context.Context, token string, policy Policy) (*MagicLink, error) {
	policy, err := ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	l, err := m.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if l.Status == StatusRevoked {
		return nil, errs.New(errs.CodeRevoked, "link has been revoked")
	}
	if m.isSealed(ctx, l.JobID) {
		return nil, errs.New(errs.CodeSealed, "job is sealed")
	}
	l.Policy = policy
	l.ExpiresAt = m.nowFunc().Add(policy.TTL())
	if err := m.resolver.Store(ctx, l); err != nil {
		return nil, fmt.Errorf("extend link: %w", err)
	}
	return l, nil
}

// RecordFirstAccess stamps the first open of a link. Later calls are no-ops.
// The first access also advances the stage to opened and clears any flag.
func (m *Manager) RecordFirstAccess(ctx context.Context, token string) (*MagicLink, error) {
	l, err := m.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if l.FirstAccessedAt != nil {
		return l, nil
	}
	now := m.nowFunc()
	l.FirstAccessedAt = timePtr(now)
	if CanAdvanceTo(l.LifecycleStage, StageOpened) {
		l.LifecycleStage = StageOpened
		l.setStageTime(StageOpened, now)
	}
	l.FlaggedAt = nil
	l.FlagReason = ""
	if err := m.resolver.Store(ctx, l); err != nil {
		return nil, fmt.Errorf("record first access: %w", err)
	}
	m.emit(ctx, LinkEvent{Type: EventStageAdvanced, Token: l.Token, JobID: l.JobID,
		WorkspaceID: l.WorkspaceID, Stage: l.LifecycleStage, OccurredAt: now})
	return l, nil
}

// AdvanceLifecycle records stage for token. Moving to the current stage is a
// no-op; moving backwards is rejected with STAGE_REGRESSION.
func (m *Manager) AdvanceLifecycle(ctx context.Context, token string, stage Stage, metadata map[string]string) (*MagicLink, error) {
	if _, ok := ParseStage(string(stage)); !ok {
		return nil, errs.Newf(errs.CodeMissingParams, "unknown lifecycle stage %q", stage)
	}
	l, err := m.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if stage == l.LifecycleStage {
		return l, nil
	}
	if !CanAdvanceTo(l.LifecycleStage, stage) {
		m.logger.Warn("rejected lifecycle regression", zap.String("token", token),
			zap.String("current", string(l.LifecycleStage)), zap.String("requested", string(stage)))
		return nil, errs.Newf(errs.CodeStageRegression, "link is already at %s; cannot move back to %s",
			l.LifecycleStage, stage)
	}

	now := m.nowFunc()
	l.LifecycleStage = stage
	l.setStageTime(stage, now)
	if stage == StageOpened && l.FirstAccessedAt == nil {
		l.FirstAccessedAt = timePtr(now)
	}
	if len(metadata) > 0 {
		if l.StageMetadata == nil {
			l.StageMetadata = map[string]map[string]string{}
		}
		md := make(map[string]string, len(metadata))
		for k, v := range metadata {
			md[k] = v
		}
		l.StageMetadata[string(stage)] = md
	}
	if err := m.resolver.Store(ctx, l); err != nil {
		return nil, fmt.Errorf("advance lifecycle: %w", err)
	}
	m.emit(ctx, LinkEvent{Type: EventStageAdvanced, Token: l.Token, JobID: l.JobID,
		WorkspaceID: l.WorkspaceID, Stage: stage, Metadata: metadata, OccurredAt: now})
	return l, nil
}

// Status derives the link status: sealed, then revoked, then expired, then
// used (job completed), otherwise active.
func (m *Manager) Status(ctx context.Context, token string) (Status, error) {
	l, err := m.load(ctx, token)
	if err != nil {
		return "", err
	}
	return m.derive(ctx, l), nil
}

func (m *Manager) derive(ctx context.Context, l *MagicLink) Status {
	switch {
	case m.isSealed(ctx, l.JobID):
		return StatusSealed
	case l.Status == StatusRevoked:
		return StatusRevoked
	case m.nowFunc().After(l.ExpiresAt):
		return StatusExpired
	case l.LifecycleStage.Rank() >= StageJobCompleted.Rank():
		return StatusUsed
	default:
		return StatusActive
	}
}

// Authorize returns the link only if it may still be used to mutate its job.
func (m *Manager) Authorize(ctx context.Context, token string) (*MagicLink, error) {
	l, err := m.load(ctx, token)
	if err != nil {
		return nil, err
	}
	if m.sealed != nil {
		sealed, serr := m.sealed.IsSealed(ctx, l.JobID)
		if serr != nil {
			// Fail closed: an unknown seal state must not allow mutation.
			return nil, fmt.Errorf("check job seal: %w", serr)
		}
		if sealed {
			return nil, errs.New(errs.CodeSealed, "job is sealed")
		}
	}
	switch m.derive(ctx, l) {
	case StatusRevoked:
		return nil, errs.New(errs.CodeRevoked, "link has been revoked")
	case StatusExpired:
		return nil, errs.New(errs.CodeExpiredLink, "access link has expired")
	case StatusUsed:
		return nil, errs.New(errs.CodeExpiredLink, "job on this link is already completed")
	case StatusSealed:
		return nil, errs.New(errs.CodeSealed, "job is sealed")
	}
	return l, nil
}

// isSealed treats lookup failures as unsealed for reporting purposes;
// Authorize checks the seal itself and fails closed.
func (m *Manager) isSealed(ctx context.Context, jobID string) bool {
	if m.sealed == nil {
		return false
	}
	sealed, err := m.sealed.IsSealed(ctx, jobID)
	if err != nil {
		m.logger.Warn("seal check failed", zap.String("job_id", jobID), zap.Error(err))
		return false
	}
	return sealed
}

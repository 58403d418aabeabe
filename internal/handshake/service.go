// Package handshake validates access codes and binds a device to exactly one
// job at a time.
//
// Per device the lock moves UNLOCKED -> UNCOMMITTED (Validate) -> LOCKED
// (Commit) -> UNLOCKED (Clear, or staleness). While LOCKED, validating a
// different job fails with LOCKED; validating the same job returns the
// committed context unchanged.
package handshake

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/accesscode"
	"github.com/imrishuroy/fieldlink/internal/errs"
	"github.com/imrishuroy/fieldlink/internal/logger"
)

// MetricTamper counts codes whose checksum did not match their job id.
const MetricTamper = "AccessCodeTamper"

// Metrics receives counters. aws.MetricsSink satisfies it.
type Metrics interface {
	Count(ctx context.Context, name string, value float64)
}

// Service is the per-device handshake. It owns its LockStore.
type Service struct {
	codec      *accesscode.Codec
	store      LockStore
	logger     *zap.Logger
	metrics    Metrics
	nowFunc    func() time.Time
	linkExpiry time.Duration
	staleAfter time.Duration
}

func NewService(codec *accesscode.Codec, store LockStore, log *zap.Logger) *Service {
	return &Service{
		codec:      codec,
		store:      store,
		logger:     logger.OrNop(log).Named("handshake"),
		nowFunc:    time.Now,
		linkExpiry: LinkExpiry,
		staleAfter: StaleAfter,
	}
}

// WithMetrics attaches a metrics sink for tamper counting.
func (s *Service) WithMetrics(m Metrics) *Service {
	s.metrics = m
	return s
}

// Verify runs the stateless checks on code: decode, required fields,
// checksum and embedded expiry. It does not consult the device lock.
func (s *Service) Verify(ctx context.Context, code string) (accesscode.AccessCode, error) {
	ac, err := accesscode.Unpack(code)
	if err != nil {
		return accesscode.AccessCode{}, errs.New(errs.CodeInvalidAccessCode, "access code could not be read")
	}
	if !ac.Complete() {
		return accesscode.AccessCode{}, errs.New(errs.CodeMissingParams, "access code is incomplete")
	}
	if !s.codec.Checksummer().Verify(ac.JobID, ac.Checksum) {
		// Forgery or corruption. The message stays generic so it does not
		// confirm whether the job exists.
		s.logger.Warn("access code checksum mismatch", zap.Bool("tamper", true),
			zap.String("delivery_contact", ac.DeliveryContact))
		if s.metrics != nil {
			s.metrics.Count(ctx, MetricTamper, 1)
		}
		return accesscode.AccessCode{}, errs.New(errs.CodeChecksumMismatch, "access code could not be verified")
	}
	if issued, ok := ac.IssuedTime(); ok && s.nowFunc().Sub(issued) > s.linkExpiry {
		s.logger.Info("expired access code presented", zap.Time("issued_at", issued))
		return accesscode.AccessCode{}, errs.New(errs.CodeExpiredLink, "access link has expired")
	}
	return ac, nil
}

// Validate checks code and resolves it against the device lock. It returns
// the committed context when the code targets the locked job, a fresh
// uncommitted context when the device is free (or its lock is stale), and a
// LOCKED error naming the active job otherwise.
func (s *Service) Validate(ctx context.Context, code string) (*Context, error) {
	ac, err := s.Verify(ctx, code)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	existing := s.Get(ctx)
	if existing != nil {
		locked, lockedAt, lerr := s.store.Locked(ctx)
		if lerr != nil {
			s.logger.Warn("read lock flag failed", zap.Error(lerr))
		}
		if lockedAt.IsZero() {
			lockedAt = existing.CreatedAt
		}
		switch {
		case IsStale(now, lockedAt, s.staleAfter):
			s.logger.Info("superseding stale handshake lock",
				zap.String("stale_job_id", existing.JobID), zap.Time("locked_at", lockedAt))
		case existing.JobID == ac.JobID:
			return existing, nil
		case locked || existing.IsLocked:
			return nil, errs.Newf(errs.CodeLocked,
				"job %s is still active on this device; finish or hand it off before opening another", existing.JobID).
				With("locked_job_id", existing.JobID)
		}
	}

	return &Context{
		JobID:            ac.JobID,
		DeliveryContact:  ac.DeliveryContact,
		SecondaryContact: ac.SecondaryContact,
		AccessCode:       code,
		Checksum:         ac.Checksum,
		CreatedAt:        now,
		IsValid:          true,
		IsLocked:         false,
	}, nil
}

// Commit persists c as the device's locked job. Persistence failures are
// logged and swallowed: the lock then simply does not survive a restart.
func (s *Service) Commit(ctx context.Context, c *Context) {
	if c == nil {
		return
	}
	c.IsLocked = true
	if err := s.store.Save(ctx, *c); err != nil {
		s.logger.Warn("commit handshake lock failed", zap.String("job_id", c.JobID), zap.Error(err))
	}
}

// Get returns the committed context, or nil when there is none or storage
// is unreadable.
func (s *Service) Get(ctx context.Context) *Context {
	c, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("load handshake lock failed", zap.Error(err))
		return nil
	}
	return c
}

// Clear removes all lock state. It is a no-op when nothing is stored.
func (s *Service) Clear(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("clear handshake lock failed", zap.Error(err))
	}
}

// IsLocked reads the lock flag without decoding the full context.
func (s *Service) IsLocked(ctx context.Context) bool {
	locked, _, err := s.store.Locked(ctx)
	if err != nil {
		s.logger.Warn("read lock flag failed", zap.Error(err))
		return false
	}
	return locked
}

// JobID returns the committed job id, or "".
func (s *Service) JobID(ctx context.Context) string {
	if c := s.Get(ctx); c != nil {
		return c.JobID
	}
	return ""
}

// DeliveryContact returns the committed delivery contact, or "".
func (s *Service) DeliveryContact(ctx context.Context) string {
	if c := s.Get(ctx); c != nil {
		return c.DeliveryContact
	}
	return ""
}

// Package app wires the server-side components shared by the api and
// worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/accesscode"
	"github.com/imrishuroy/fieldlink/internal/aws"
	"github.com/imrishuroy/fieldlink/internal/config"
	"github.com/imrishuroy/fieldlink/internal/handshake"
	"github.com/imrishuroy/fieldlink/internal/idempotency"
	"github.com/imrishuroy/fieldlink/internal/kv"
	"github.com/imrishuroy/fieldlink/internal/links"
	"github.com/imrishuroy/fieldlink/internal/logger"
	"github.com/imrishuroy/fieldlink/internal/remote"
)

const (
	memoryTierSize = 4096
	rowCacheSize   = 1024
	regenerateTTL  = 10 * time.Second
	probeTimeout   = 2 * time.Second
)

// Services holds the wired server components.
type Services struct {
	Config      *config.Config
	Logger      *zap.Logger
	Clients     *aws.AWSClients
	Metrics     *aws.MetricsSink
	Codec       *accesscode.Codec
	Remote      *remote.CachedReader
	Links       *links.Manager
	Idempotency *idempotency.Store
	Verifier    *handshake.Service

	closers []func() error
}

// New loads configuration and builds every server component for service.
func New(ctx context.Context, service string) (*Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, service)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	clients, err := aws.NewAWSClients(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	return Wire(cfg, clients, log)
}

// Wire builds the components from already loaded dependencies.
func Wire(cfg *config.Config, clients *aws.AWSClients, log *zap.Logger) (*Services, error) {
	log = logger.OrNop(log)
	s := &Services{Config: cfg, Logger: log, Clients: clients}

	s.Metrics = aws.NewMetricsSink(clients.CloudWatch, cfg.MetricsNamespace, log)
	s.Codec = accesscode.NewCodec(accesscode.NewChecksummer(cfg.AccessCodeKey))

	var probe remote.Prober
	if cfg.ProbeURL != "" {
		probe = remote.NewHTTPProbe(cfg.ProbeURL, probeTimeout, log)
	}
	cached, err := remote.NewCachedReader(remote.NewDynamo(clients.DynamoDB, cfg.Table, probe), rowCacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	s.Remote = cached

	mem, err := links.NewMemoryTier(memoryTierSize, cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	tiers := []links.Tier{mem}
	var locker links.Locker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s.closers = append(s.closers, rdb.Close)
		tiers = append(tiers, links.NewKVTier(kv.NewRedis(rdb, "fieldlink:")))
		locker = links.NewRedisLocker(rdb, regenerateTTL)
	}
	tiers = append(tiers, links.NewDynamoTier(clients.DynamoDB, cfg.Table("links")))

	var publisher links.MessagePublisher
	if cfg.LinkEventsQueueURL != "" && clients.SQS != nil {
		publisher = aws.NewPublisher(clients.SQS, cfg.LinkEventsQueueURL)
	}

	s.Links = links.NewManager(links.NewResolver(log, tiers...), links.ManagerConfig{
		BaseURL:     cfg.PublicBaseURL,
		PhoneRegion: cfg.PhoneRegion,
		Codec:       s.Codec,
		Sealed:      cached,
		Publisher:   publisher,
		Locker:      locker,
		Logger:      log,
	})
	s.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.Table("idempotency"), idempotency.DefaultTTL)

	// Verification on the server is stateless; the lock store is never read.
	s.Verifier = handshake.NewService(s.Codec, handshake.NewKVLockStore(kv.NewMemory()), log).WithMetrics(s.Metrics)
	return s, nil
}

// Close releases connections and flushes the logger.
func (s *Services) Close() error {
	var errList []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errList = append(errList, err)
		}
	}
	_ = s.Logger.Sync()
	return errors.Join(errList...)
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/accesscode"
	"github.com/imrishuroy/fieldlink/internal/aws"
	"github.com/imrishuroy/fieldlink/internal/config"
	"github.com/imrishuroy/fieldlink/internal/handshake"
	"github.com/imrishuroy/fieldlink/internal/kv"
	"github.com/imrishuroy/fieldlink/internal/remote"
	"github.com/imrishuroy/fieldlink/internal/syncer"
)

const (
	rowCacheSize = 256
	probeTimeout = 2 * time.Second
)

// Device bundles the components a field device runs over one local store.
type Device struct {
	Handshake *handshake.Service
	Sync      *syncer.Manager

	closers []func() error
}

// NewDevice wires the handshake and sync manager over store and r.
func NewDevice(cfg *config.Config, store kv.Store, r syncer.Remote, log *zap.Logger, opts ...syncer.Option) *Device {
	codec := accesscode.NewCodec(accesscode.NewChecksummer(cfg.AccessCodeKey))
	opts = append([]syncer.Option{syncer.WithWindow(cfg.DebounceWindow), syncer.WithLogger(log)}, opts...)
	return &Device{
		Handshake: handshake.NewService(codec, handshake.NewKVLockStore(store), log),
		Sync:      syncer.NewManager(store, r, opts...),
	}
}

// OpenDevice opens the SQLite device store and the DynamoDB remote.
func OpenDevice(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Device, error) {
	store, err := kv.OpenSQLite(cfg.DeviceDBPath)
	if err != nil {
		return nil, err
	}
	clients, err := aws.NewAWSClients(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init aws clients: %w", err)
	}

	var probe remote.Prober
	if cfg.ProbeURL != "" {
		probe = remote.NewHTTPProbe(cfg.ProbeURL, probeTimeout, log)
	}
	cached, err := remote.NewCachedReader(remote.NewDynamo(clients.DynamoDB, cfg.Table, probe), rowCacheSize, cfg.CacheTTL)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sink := aws.NewMetricsSink(clients.CloudWatch, cfg.MetricsNamespace, log)

	d := NewDevice(cfg, store, cached, log, syncer.WithInvalidator(cached), syncer.WithMetrics(sink))
	d.Handshake.WithMetrics(sink)
	d.closers = append(d.closers, store.Close)
	return d, nil
}

// Close releases the device store.
func (d *Device) Close() error {
	var errList []error
	for _, c := range d.closers {
		if err := c(); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

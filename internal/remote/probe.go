package remote

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/logger"
)

// HTTPProbe checks reachability with GET <baseURL>/health.
type HTTPProbe struct {
	client *resty.Client
	url    string
	logger *zap.Logger
}

func NewHTTPProbe(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPProbe {
	return &HTTPProbe{
		client: resty.New().SetTimeout(timeout),
		url:    strings.TrimRight(baseURL, "/") + "/health",
		logger: logger.OrNop(log).Named("remote.probe"),
	}
}

// Reachable reports true on any 2xx response.
func (p *HTTPProbe) Reachable(ctx context.Context) bool {
	resp, err := p.client.R().SetContext(ctx).Get(p.url)
	if err != nil {
		p.logger.Debug("probe failed", zap.String("url", p.url), zap.Error(err))
		return false
	}
	return resp.IsSuccess()
}

// StaticProbe is a fixed reachability answer, used for offline CLI runs.
type StaticProbe bool

func (s StaticProbe) Reachable(context.Context) bool { return bool(s) }

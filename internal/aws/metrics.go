package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/fieldlink/internal/logger"
)

// MetricsSink publishes counters to CloudWatch. Failures are logged, never
// returned: metrics must not interfere with the operation being measured.
type MetricsSink struct {
	client    CloudWatchAPI
	namespace string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

func NewMetricsSink(client CloudWatchAPI, namespace string, log *zap.Logger) *MetricsSink {
	return &MetricsSink{
		client:    client,
		namespace: namespace,
		logger:    logger.OrNop(log),
		nowFunc:   time.Now,
	}
}

// Count records value for the metric name.
func (m *MetricsSink) Count(ctx context.Context, name string, value float64) {
	if m == nil || m.client == nil {
		return
	}
	ts := m.nowFunc()
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(name),
				Timestamp:  &ts,
				Unit:       cwtypes.StandardUnitCount,
				Value:      &value,
			},
		},
	})
	if err != nil {
		m.logger.Warn("put metric failed", zap.String("metric", name), zap.Error(err))
	}
}

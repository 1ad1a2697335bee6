package monitoring

import (
	"context"
	"time"

	"github.com/multibridge/mma/pkg/common"
)

type NoopRelayMonitoring struct{}

func NewNoopRelayMonitoring() *NoopRelayMonitoring {
	return &NoopRelayMonitoring{}
}

func (m *NoopRelayMonitoring) Metrics() common.MetricLabeler {
	return NewNoopMetricLabeler()
}

type NoopMetricLabeler struct{}

func NewNoopMetricLabeler() *NoopMetricLabeler {
	return &NoopMetricLabeler{}
}

func (c *NoopMetricLabeler) With(...string) common.MetricLabeler {
	return c
}

func (c *NoopMetricLabeler) IncrementDeliveries(ctx context.Context) {
	// No-op
}

func (c *NoopMetricLabeler) IncrementDuplicateDeliveries(ctx context.Context) {
	// No-op
}

func (c *NoopMetricLabeler) IncrementQuorumReached(ctx context.Context) {
	// No-op
}

func (c *NoopMetricLabeler) RecordTimeToQuorum(ctx context.Context, duration time.Duration) {
	// No-op
}

func (c *NoopMetricLabeler) IncrementScheduled(ctx context.Context) {
	// No-op
}

func (c *NoopMetricLabeler) IncrementExecutions(ctx context.Context) {
	// No-op
}

func (c *NoopMetricLabeler) IncrementExecutionFailures(ctx context.Context) {
	// No-op
}

func (c *NoopMetricLabeler) RecordDispatchFanout(ctx context.Context, successCount int) {
	// No-op
}

func (c *NoopMetricLabeler) IncrementAdapterFailures(ctx context.Context) {
	// No-op
}

func (c *NoopMetricLabeler) SetRegistrySize(ctx context.Context, size int) {
	// No-op
}

func (c *NoopMetricLabeler) SetQuorumThreshold(ctx context.Context, quorum uint64) {
	// No-op
}

func (c *NoopMetricLabeler) RecordWorkerScanDuration(ctx context.Context, duration time.Duration) {
	// No-op
}

func (c *NoopMetricLabeler) IncrementWorkerErrors(ctx context.Context) {
	// No-op
}

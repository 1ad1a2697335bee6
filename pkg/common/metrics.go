package common

import (
	"context"
	"time"
)

// Monitoring provides access to the relay node's monitoring capabilities.
type Monitoring interface {
	// Metrics returns a MetricLabeler for recording metrics.
	Metrics() MetricLabeler
}

// MetricLabeler provides methods for recording protocol metrics.
type MetricLabeler interface {
	// With returns a new MetricLabeler with additional key-value labels.
	With(keyValues ...string) MetricLabeler
	// IncrementDeliveries increments the accepted bridge deliveries counter.
	IncrementDeliveries(ctx context.Context)
	// IncrementDuplicateDeliveries increments the rejected duplicate delivery counter.
	IncrementDuplicateDeliveries(ctx context.Context)
	// IncrementQuorumReached increments the counter of messages reaching quorum.
	IncrementQuorumReached(ctx context.Context)
	// RecordTimeToQuorum records the time between first delivery and quorum.
	RecordTimeToQuorum(ctx context.Context, duration time.Duration)
	// IncrementScheduled increments the counter of messages handed to the timelock.
	IncrementScheduled(ctx context.Context)
	// IncrementExecutions increments the executed transactions counter.
	IncrementExecutions(ctx context.Context)
	// IncrementExecutionFailures increments the counter of target call failures.
	IncrementExecutionFailures(ctx context.Context)
	// RecordDispatchFanout records how many adapters accepted one dispatch.
	RecordDispatchFanout(ctx context.Context, successCount int)
	// IncrementAdapterFailures increments the per-adapter dispatch failure counter.
	IncrementAdapterFailures(ctx context.Context)
	// SetRegistrySize sets the registered adapter count gauge.
	SetRegistrySize(ctx context.Context, size int)
	// SetQuorumThreshold sets the quorum threshold gauge.
	SetQuorumThreshold(ctx context.Context, quorum uint64)
	// RecordWorkerScanDuration records the duration of one execution worker scan.
	RecordWorkerScanDuration(ctx context.Context, duration time.Duration)
	// IncrementWorkerErrors increments the execution worker error counter.
	IncrementWorkerErrors(ctx context.Context)
}

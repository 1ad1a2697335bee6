package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/multibridge/mma/pkg/common"
)

// RelayMetrics holds every instrument the relay node records.
type RelayMetrics struct {
	deliveries          metric.Int64Counter
	duplicateDeliveries metric.Int64Counter
	quorumReached       metric.Int64Counter
	timeToQuorum        metric.Float64Histogram
	scheduled           metric.Int64Counter
	executions          metric.Int64Counter
	executionFailures   metric.Int64Counter

	dispatchFanout  metric.Int64Histogram
	adapterFailures metric.Int64Counter

	registrySize    metric.Int64Gauge
	quorumThreshold metric.Int64Gauge

	workerScanDuration metric.Float64Histogram
	workerErrors       metric.Int64Counter
}

func MetricViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "mma_time_to_quorum_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "mma_dispatch_fanout"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "mma_worker_scan_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			}},
		),
	}
}

func InitMetrics(meter metric.Meter) (rm *RelayMetrics, err error) {
	rm = &RelayMetrics{}

	rm.deliveries, err = meter.Int64Counter(
		"mma_deliveries",
		metric.WithDescription("Total number of accepted bridge deliveries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register deliveries counter: %w", err)
	}

	rm.duplicateDeliveries, err = meter.Int64Counter(
		"mma_duplicate_deliveries",
		metric.WithDescription("Total number of rejected duplicate deliveries"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register duplicate deliveries counter: %w", err)
	}

	rm.quorumReached, err = meter.Int64Counter(
		"mma_quorum_reached",
		metric.WithDescription("Total number of messages reaching quorum"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register quorum reached counter: %w", err)
	}

	rm.timeToQuorum, err = meter.Float64Histogram(
		"mma_time_to_quorum_seconds",
		metric.WithDescription("Time between first delivery and quorum"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register time to quorum histogram: %w", err)
	}

	rm.scheduled, err = meter.Int64Counter(
		"mma_scheduled",
		metric.WithDescription("Total number of messages handed to the timelock"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register scheduled counter: %w", err)
	}

	rm.executions, err = meter.Int64Counter(
		"mma_executions",
		metric.WithDescription("Total number of executed scheduled transactions"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register executions counter: %w", err)
	}

	rm.executionFailures, err = meter.Int64Counter(
		"mma_execution_failures",
		metric.WithDescription("Total number of failed target calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register execution failures counter: %w", err)
	}

	rm.dispatchFanout, err = meter.Int64Histogram(
		"mma_dispatch_fanout",
		metric.WithDescription("Number of adapters accepting one dispatch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register dispatch fanout histogram: %w", err)
	}

	rm.adapterFailures, err = meter.Int64Counter(
		"mma_adapter_failures",
		metric.WithDescription("Total number of per-adapter dispatch failures"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register adapter failures counter: %w", err)
	}

	rm.registrySize, err = meter.Int64Gauge(
		"mma_registry_size",
		metric.WithDescription("Current number of registered adapters"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register registry size gauge: %w", err)
	}

	rm.quorumThreshold, err = meter.Int64Gauge(
		"mma_quorum_threshold",
		metric.WithDescription("Current quorum threshold"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register quorum threshold gauge: %w", err)
	}

	rm.workerScanDuration, err = meter.Float64Histogram(
		"mma_worker_scan_duration_seconds",
		metric.WithDescription("Duration of one execution worker scan"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register worker scan duration histogram: %w", err)
	}

	rm.workerErrors, err = meter.Int64Counter(
		"mma_worker_errors",
		metric.WithDescription("Total number of execution worker errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register worker errors counter: %w", err)
	}

	return rm, nil
}

// RelayMetricLabeler records relay metrics under an accumulated label set.
type RelayMetricLabeler struct {
	labels []attribute.KeyValue
	rm     *RelayMetrics
}

func NewRelayMetricLabeler(rm *RelayMetrics) common.MetricLabeler {
	return &RelayMetricLabeler{rm: rm}
}

func (c *RelayMetricLabeler) With(keyValues ...string) common.MetricLabeler {
	labels := make([]attribute.KeyValue, len(c.labels), len(c.labels)+len(keyValues)/2)
	copy(labels, c.labels)
	for i := 0; i+1 < len(keyValues); i += 2 {
		labels = append(labels, attribute.String(keyValues[i], keyValues[i+1]))
	}
	return &RelayMetricLabeler{labels: labels, rm: c.rm}
}

func (c *RelayMetricLabeler) IncrementDeliveries(ctx context.Context) {
	c.rm.deliveries.Add(ctx, 1, metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) IncrementDuplicateDeliveries(ctx context.Context) {
	c.rm.duplicateDeliveries.Add(ctx, 1, metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) IncrementQuorumReached(ctx context.Context) {
	c.rm.quorumReached.Add(ctx, 1, metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) RecordTimeToQuorum(ctx context.Context, duration time.Duration) {
	c.rm.timeToQuorum.Record(ctx, duration.Seconds(), metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) IncrementScheduled(ctx context.Context) {
	c.rm.scheduled.Add(ctx, 1, metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) IncrementExecutions(ctx context.Context) {
	c.rm.executions.Add(ctx, 1, metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) IncrementExecutionFailures(ctx context.Context) {
	c.rm.executionFailures.Add(ctx, 1, metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) RecordDispatchFanout(ctx context.Context, successCount int) {
	c.rm.dispatchFanout.Record(ctx, int64(successCount), metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) IncrementAdapterFailures(ctx context.Context) {
	c.rm.adapterFailures.Add(ctx, 1, metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) SetRegistrySize(ctx context.Context, size int) {
	c.rm.registrySize.Record(ctx, int64(size), metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) SetQuorumThreshold(ctx context.Context, quorum uint64) {
	c.rm.quorumThreshold.Record(ctx, int64(quorum), metric.WithAttributes(c.labels...)) //nolint:gosec // quorum is small
}

func (c *RelayMetricLabeler) RecordWorkerScanDuration(ctx context.Context, duration time.Duration) {
	c.rm.workerScanDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(c.labels...))
}

func (c *RelayMetricLabeler) IncrementWorkerErrors(ctx context.Context) {
	c.rm.workerErrors.Add(ctx, 1, metric.WithAttributes(c.labels...))
}

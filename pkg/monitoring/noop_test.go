package monitoring

import (
	"context"
	"testing"
	"time"
)

func TestNoopRelayMonitoring_DoesNotPanic(t *testing.T) {
	m := NewNoopRelayMonitoring()
	lbl := m.Metrics()

	ctx := context.Background()
	_ = lbl.With("key", "value")
	lbl.IncrementDeliveries(ctx)
	lbl.IncrementDuplicateDeliveries(ctx)
	lbl.IncrementQuorumReached(ctx)
	lbl.RecordTimeToQuorum(ctx, time.Second)
	lbl.IncrementScheduled(ctx)
	lbl.IncrementExecutions(ctx)
	lbl.IncrementExecutionFailures(ctx)
	lbl.RecordDispatchFanout(ctx, 3)
	lbl.IncrementAdapterFailures(ctx)
	lbl.SetRegistrySize(ctx, 4)
	lbl.SetQuorumThreshold(ctx, 2)
	lbl.RecordWorkerScanDuration(ctx, 10*time.Millisecond)
	lbl.IncrementWorkerErrors(ctx)
}

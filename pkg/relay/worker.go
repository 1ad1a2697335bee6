package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/collector"
	"github.com/multibridge/mma/pkg/timelock"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// ExecutionWorker periodically advances the pipeline: quorum-ready messages
// are handed to the timelock, and ripe timelock transactions are executed.
// Both operations are permissionless on-protocol, so the worker is a pure
// liveness component and never a trust one.
type ExecutionWorker struct {
	collector   *collector.Collector
	timelock    *timelock.Timelock
	interval    time.Duration
	scanTimeout time.Duration
	mon         mmacommon.Monitoring
	clock       mmacommon.TimeProvider
	logger      *zap.SugaredLogger

	mu       sync.Mutex
	lastScan time.Time
}

func NewExecutionWorker(
	c *collector.Collector,
	tl *timelock.Timelock,
	interval, scanTimeout time.Duration,
	mon mmacommon.Monitoring,
	clock mmacommon.TimeProvider,
	logger *zap.SugaredLogger,
) *ExecutionWorker {
	return &ExecutionWorker{
		collector:   c,
		timelock:    tl,
		interval:    interval,
		scanTimeout: scanTimeout,
		mon:         mon,
		clock:       clock,
		logger:      logger.With("component", "execution_worker"),
	}
}

// Run scans immediately and then on every tick until the context is
// cancelled. It always returns the context's error.
func (w *ExecutionWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Scan(ctx)
		}
	}
}

// Scan runs one pass over schedulable messages and ripe transactions.
func (w *ExecutionWorker) Scan(ctx context.Context) {
	start := w.clock.Now()
	scanCtx, cancel := context.WithTimeout(ctx, w.scanTimeout)
	defer cancel()

	w.scheduleReadyMessages(scanCtx)
	w.executeRipeTransactions(scanCtx)

	w.mon.Metrics().RecordWorkerScanDuration(ctx, w.clock.Now().Sub(start))
	w.mu.Lock()
	w.lastScan = start
	w.mu.Unlock()
}

func (w *ExecutionWorker) scheduleReadyMessages(ctx context.Context) {
	ids, err := w.collector.ReadyForScheduling(ctx)
	if err != nil {
		w.mon.Metrics().IncrementWorkerErrors(ctx)
		w.logger.Errorw("Failed to list schedulable messages", "error", err)
		return
	}

	for _, msgID := range ids {
		if _, err := w.collector.ScheduleMessageExecution(ctx, msgID); err != nil {
			// Lost races are expected: another scheduler may have advanced
			// the message, or the registry changed under us.
			if errors.Is(err, mmacommon.ErrMessageAlreadyExecuted) ||
				errors.Is(err, mmacommon.ErrQuorumNotMet) ||
				errors.Is(err, mmacommon.ErrMessageExpired) {
				continue
			}
			w.mon.Metrics().IncrementWorkerErrors(ctx)
			w.logger.Errorw("Failed to schedule message", "msgID", msgID.String(), "error", err)
		}
	}
}

func (w *ExecutionWorker) executeRipeTransactions(ctx context.Context) {
	txs, err := w.timelock.ReadyTransactions(ctx)
	if err != nil {
		w.mon.Metrics().IncrementWorkerErrors(ctx)
		w.logger.Errorw("Failed to list ripe transactions", "error", err)
		return
	}

	for _, tx := range txs {
		_, err := w.timelock.Execute(ctx, tx.Target, tx.ValueOrZero(), tx.Data, tx.ETA, tx.Salt)
		if err != nil && !errors.Is(err, mmacommon.ErrTxAlreadyExecuted) {
			// Execution failures are terminal for the transaction and
			// already surfaced by the timelock's own events and metrics.
			if errors.Is(err, mmacommon.ErrExecutionFailed) {
				continue
			}
			w.mon.Metrics().IncrementWorkerErrors(ctx)
			w.logger.Errorw("Failed to execute transaction", "txID", tx.TxID.String(), "error", err)
		}
	}
}

// HealthCheck reports degraded when scans stop arriving.
func (w *ExecutionWorker) HealthCheck(_ context.Context) *mmacommon.ComponentHealth {
	now := w.clock.Now()
	healthStatus := &mmacommon.ComponentHealth{
		Name:      "execution_worker",
		Status:    mmacommon.HealthStatusHealthy,
		Timestamp: now,
	}

	w.mu.Lock()
	last := w.lastScan
	w.mu.Unlock()

	if last.IsZero() {
		healthStatus.Status = mmacommon.HealthStatusDegraded
		healthStatus.Message = "no scan completed yet"
	} else if now.Sub(last) > 3*w.interval {
		healthStatus.Status = mmacommon.HealthStatusDegraded
		healthStatus.Message = "scans are falling behind"
	}
	return healthStatus
}

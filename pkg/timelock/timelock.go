// Package timelock holds quorum-approved calls for a mandatory delay before
// execution. Transactions are identified by the hash of their full parameter
// set, so execution can only ever run exactly what was scheduled.
package timelock

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/execution"
	"github.com/multibridge/mma/pkg/model"
	"github.com/multibridge/mma/pkg/protocol"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// Store persists the timelock queue.
type Store interface {
	Get(ctx context.Context, txID protocol.Bytes32) (*model.ScheduledTransaction, error)
	Put(ctx context.Context, tx *model.ScheduledTransaction) error
	All(ctx context.Context) ([]*model.ScheduledTransaction, error)
}

// Config configures a Timelock.
type Config struct {
	// Admin is the only identity allowed to schedule, normally the collector.
	Admin common.Address
	// Conduit is the identity the timelock performs target calls under, and
	// the only identity allowed to change delay or admin (so such changes
	// must travel through the queue itself).
	Conduit common.Address
	// Delay between scheduling and earliest execution.
	Delay time.Duration
	// MinDelay and MaxDelay bound later delay changes. MaxDelay zero means
	// unbounded.
	MinDelay time.Duration
	MaxDelay time.Duration
	// GracePeriod after eta during which execution is allowed. Zero disables
	// the window: transactions stay executable indefinitely once ripe.
	GracePeriod time.Duration
}

// Timelock queues calls and executes them after the configured delay.
// Scheduling is admin-only, execution is permissionless: anyone may trigger a
// ripe transaction, the parameter hash guarantees it runs unmodified.
type Timelock struct {
	store    Store
	executor execution.CallExecutor
	clock    mmacommon.TimeProvider
	sink     mmacommon.EventSink
	mon      mmacommon.Monitoring
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	admin    common.Address
	conduit  common.Address
	delay    time.Duration
	minDelay time.Duration
	maxDelay time.Duration
	grace    time.Duration
	nextSalt uint64

	// execMu serializes the check-mark-persist window of Execute, so
	// concurrent permissionless executors cannot both claim one transaction.
	execMu sync.Mutex
}

func NewTimelock(
	cfg Config,
	store Store,
	executor execution.CallExecutor,
	clock mmacommon.TimeProvider,
	sink mmacommon.EventSink,
	mon mmacommon.Monitoring,
	logger *zap.SugaredLogger,
) (*Timelock, error) {
	if cfg.Admin == (common.Address{}) || cfg.Conduit == (common.Address{}) {
		return nil, mmacommon.ErrZeroAddress
	}
	if store == nil || executor == nil {
		return nil, fmt.Errorf("store and executor must not be nil")
	}
	if cfg.Delay < cfg.MinDelay {
		return nil, fmt.Errorf("delay %s below minimum %s", cfg.Delay, cfg.MinDelay)
	}
	if cfg.MaxDelay > 0 && cfg.Delay > cfg.MaxDelay {
		return nil, fmt.Errorf("delay %s above maximum %s", cfg.Delay, cfg.MaxDelay)
	}

	return &Timelock{
		store:    store,
		executor: executor,
		clock:    clock,
		sink:     sink,
		mon:      mon,
		logger:   logger.With("component", "timelock"),
		admin:    cfg.Admin,
		conduit:  cfg.Conduit,
		delay:    cfg.Delay,
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
		grace:    cfg.GracePeriod,
	}, nil
}

// Admin returns the current admin.
func (t *Timelock) Admin() common.Address {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.admin
}

// Conduit returns the identity target calls are performed under.
func (t *Timelock) Conduit() common.Address {
	return t.conduit
}

// Delay returns the current scheduling delay.
func (t *Timelock) Delay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// Schedule queues a call for execution at now + delay. Admin only.
func (t *Timelock) Schedule(ctx context.Context, caller, target common.Address, value *big.Int, data []byte) (*model.ScheduledTransaction, error) {
	t.mu.Lock()
	admin := t.admin
	delay := t.delay
	t.mu.Unlock()

	if caller != admin {
		return nil, fmt.Errorf("caller %s is not the timelock admin: %w", caller.Hex(), mmacommon.ErrUnauthorizedCaller)
	}
	if target == (common.Address{}) {
		return nil, mmacommon.ErrZeroAddress
	}

	now := t.clock.Now()
	eta := now.Add(delay).Unix()

	t.mu.Lock()
	t.nextSalt++
	salt := t.nextSalt
	t.mu.Unlock()

	tx := &model.ScheduledTransaction{
		TxID:        model.ComputeTxID(target, value, data, eta, salt),
		Target:      target,
		Value:       value,
		Data:        data,
		ETA:         eta,
		Salt:        salt,
		ScheduledAt: now,
	}
	if err := t.store.Put(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to store scheduled transaction: %w", err)
	}

	t.publish(ctx, model.TransactionScheduledEvent{
		BaseEvent: model.NewBaseEvent(now),
		TxID:      tx.TxID,
		Target:    target,
		ETA:       eta,
	})
	t.logger.Infow("Scheduled transaction",
		"txID", tx.TxID.String(),
		"target", target.Hex(),
		"eta", eta,
	)
	return tx, nil
}

// Execute runs a ripe transaction. The parameters are hashed and looked up,
// so any tampering yields an unknown transaction. The executed flag is
// persisted before the target call: a transaction runs at most once even if
// the call itself fails.
func (t *Timelock) Execute(ctx context.Context, target common.Address, value *big.Int, data []byte, eta int64, salt uint64) (execution.CallResult, error) {
	txID := model.ComputeTxID(target, value, data, eta, salt)

	tx, err := t.claimForExecution(ctx, txID)
	if err != nil {
		return execution.CallResult{}, err
	}

	result := t.executor.Call(ctx, t.conduit, target, tx.ValueOrZero(), data)

	event := model.TransactionExecutedEvent{
		BaseEvent: model.NewBaseEvent(t.clock.Now()),
		TxID:      txID,
		Target:    target,
		Success:   result.Success,
	}
	if result.Success {
		t.mon.Metrics().IncrementExecutions(ctx)
		t.logger.Infow("Executed transaction", "txID", txID.String(), "target", target.Hex())
	} else {
		event.Reason = result.Err.Error()
		t.mon.Metrics().IncrementExecutionFailures(ctx)
		t.logger.Warnw("Transaction execution failed",
			"txID", txID.String(),
			"target", target.Hex(),
			"error", result.Err,
		)
	}
	t.publish(ctx, event)

	if !result.Success {
		return result, fmt.Errorf("%w: %s", mmacommon.ErrExecutionFailed, result.Err)
	}
	return result, nil
}

// claimForExecution validates the transaction and persists the executed flag
// under execMu. Execution is permissionless, so the whole check-mark-persist
// sequence must be one critical section: a second caller racing on the same
// txID blocks here and then sees the flag.
func (t *Timelock) claimForExecution(ctx context.Context, txID protocol.Bytes32) (*model.ScheduledTransaction, error) {
	t.execMu.Lock()
	defer t.execMu.Unlock()

	tx, err := t.store.Get(ctx, txID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", mmacommon.ErrUnknownTransaction, txID.String())
	}
	if tx.Executed {
		return nil, fmt.Errorf("%w: %s", mmacommon.ErrTxAlreadyExecuted, txID.String())
	}

	now := t.clock.Now().Unix()
	if now < tx.ETA {
		return nil, fmt.Errorf("%w: eta %d, now %d", mmacommon.ErrTimelocked, tx.ETA, now)
	}
	t.mu.Lock()
	grace := t.grace
	t.mu.Unlock()
	if grace > 0 && now > tx.ETA+int64(grace.Seconds()) {
		return nil, fmt.Errorf("%w: eta %d, grace %s", mmacommon.ErrTxExpired, tx.ETA, grace)
	}

	tx.Executed = true
	if err := t.store.Put(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to persist executed flag: %w", err)
	}
	return tx, nil
}

// ReadyTransactions returns queued transactions that are ripe and still
// inside their grace window at the given instant.
func (t *Timelock) ReadyTransactions(ctx context.Context) ([]*model.ScheduledTransaction, error) {
	txs, err := t.store.All(ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	grace := t.grace
	t.mu.Unlock()
	now := t.clock.Now().Unix()

	var ready []*model.ScheduledTransaction
	for _, tx := range txs {
		if tx.Executed || now < tx.ETA {
			continue
		}
		if grace > 0 && now > tx.ETA+int64(grace.Seconds()) {
			continue
		}
		ready = append(ready, tx)
	}
	return ready, nil
}

// SetDelay changes the scheduling delay. Only callable by the conduit, which
// means the change itself must pass through the queue.
func (t *Timelock) SetDelay(caller common.Address, delay time.Duration) error {
	if caller != t.conduit {
		return fmt.Errorf("caller %s: %w", caller.Hex(), mmacommon.ErrNotSelf)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if delay < t.minDelay {
		return fmt.Errorf("delay %s below minimum %s", delay, t.minDelay)
	}
	if t.maxDelay > 0 && delay > t.maxDelay {
		return fmt.Errorf("delay %s above maximum %s", delay, t.maxDelay)
	}
	t.delay = delay
	return nil
}

// SetAdmin changes the admin. Only callable by the conduit.
func (t *Timelock) SetAdmin(caller, admin common.Address) error {
	if caller != t.conduit {
		return fmt.Errorf("caller %s: %w", caller.Hex(), mmacommon.ErrNotSelf)
	}
	if admin == (common.Address{}) {
		return mmacommon.ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.admin = admin
	return nil
}

func (t *Timelock) publish(ctx context.Context, event mmacommon.Event) {
	if t.sink != nil {
		t.sink.Publish(ctx, event)
	}
}

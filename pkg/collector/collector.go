// Package collector implements the destination-side quorum engine: it counts
// distinct adapter deliveries per message, and once the threshold is met
// hands the embedded call to the timelock. Scheduling always rechecks quorum
// against the registry as it stands at that moment, so deliveries from
// since-removed adapters stop counting.
package collector

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/model"
	"github.com/multibridge/mma/pkg/protocol"
	"github.com/multibridge/mma/pkg/quorum"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// MessageRecordStore persists per-message aggregation state.
type MessageRecordStore interface {
	Get(ctx context.Context, msgID protocol.Bytes32) (*model.MessageRecord, error)
	Put(ctx context.Context, record *model.MessageRecord) error
	All(ctx context.Context) ([]*model.MessageRecord, error)
}

// Scheduler is the timelock surface the collector hands approved calls to.
type Scheduler interface {
	Schedule(ctx context.Context, caller, target common.Address, value *big.Int, data []byte) (*model.ScheduledTransaction, error)
}

// Config configures a Collector.
type Config struct {
	// ChainID is the chain this collector accepts messages for.
	ChainID protocol.ChainID
	// Address is the collector's own identity. It is the timelock admin and
	// the finalDestination receiver adapters validate against.
	Address common.Address
	// Conduit is the timelock's execution identity, the only caller allowed
	// into the governance surface.
	Conduit common.Address
}

// Collector aggregates bridge deliveries into quorum decisions. A single
// mutex serializes every record mutation; bridge receivers may call in from
// any goroutine.
type Collector struct {
	cfg       Config
	registry  *model.AdapterRegistry
	validator *quorum.RegistryQuorumValidator
	store     MessageRecordStore
	scheduler Scheduler
	sink      mmacommon.EventSink
	mon       mmacommon.Monitoring
	clock     mmacommon.TimeProvider
	logger    *zap.SugaredLogger

	mu sync.Mutex
}

func NewCollector(
	cfg Config,
	registry *model.AdapterRegistry,
	store MessageRecordStore,
	scheduler Scheduler,
	sink mmacommon.EventSink,
	mon mmacommon.Monitoring,
	clock mmacommon.TimeProvider,
	logger *zap.SugaredLogger,
) (*Collector, error) {
	if cfg.ChainID == 0 {
		return nil, mmacommon.ErrZeroChainID
	}
	if cfg.Address == (common.Address{}) || cfg.Conduit == (common.Address{}) {
		return nil, mmacommon.ErrZeroAddress
	}
	if registry == nil || store == nil || scheduler == nil {
		return nil, fmt.Errorf("registry, store and scheduler must not be nil")
	}

	return &Collector{
		cfg:       cfg,
		registry:  registry,
		validator: quorum.NewRegistryQuorumValidator(),
		store:     store,
		scheduler: scheduler,
		sink:      sink,
		mon:       mon,
		clock:     clock,
		logger:    logger.With("component", "collector"),
	}, nil
}

// Address returns the collector's own identity.
func (c *Collector) Address() common.Address {
	return c.cfg.Address
}

// Registry exposes the adapter registry, read-only by convention: mutations
// go through the governance surface.
func (c *Collector) Registry() *model.AdapterRegistry {
	return c.registry
}

// ReceiveMessage records one adapter's delivery of a message. The caller must
// be a currently registered adapter; a second delivery by the same adapter is
// rejected and counts nothing.
func (c *Collector) ReceiveMessage(ctx context.Context, adapterCaller common.Address, srcChainID protocol.ChainID, bridgeName string, msg *protocol.Message) error {
	if msg == nil {
		return fmt.Errorf("message must not be nil")
	}
	if !c.registry.Contains(adapterCaller) {
		return fmt.Errorf("adapter %s: %w", adapterCaller.Hex(), mmacommon.ErrNotRegisteredAdapter)
	}
	if msg.DstChainID != c.cfg.ChainID {
		return fmt.Errorf("message destined for chain %d, this collector serves chain %d", msg.DstChainID, c.cfg.ChainID)
	}
	if msg.SrcChainID != srcChainID {
		return fmt.Errorf("message src chain %d does not match delivery chain %d", msg.SrcChainID, srcChainID)
	}

	msgID, err := msg.MessageID()
	if err != nil {
		return fmt.Errorf("failed to compute message id: %w", err)
	}
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.store.Get(ctx, msgID)
	if errors.Is(err, mmacommon.ErrRecordNotFound) {
		record = model.NewMessageRecord(msgID, msg, now)
	} else if err != nil {
		return fmt.Errorf("failed to load message record: %w", err)
	}
	if record.Executed {
		return fmt.Errorf("msgId %s: %w", msgID.String(), mmacommon.ErrMessageAlreadyExecuted)
	}

	snapshot := c.registry.Snapshot()
	metBefore, _ := c.validator.CheckQuorum(record, snapshot)

	if err := record.AddDelivery(adapterCaller, bridgeName); err != nil {
		c.mon.Metrics().IncrementDuplicateDeliveries(ctx)
		return err
	}
	if err := c.store.Put(ctx, record); err != nil {
		return fmt.Errorf("failed to store message record: %w", err)
	}
	c.mon.Metrics().IncrementDeliveries(ctx)

	met, count := c.validator.CheckQuorum(record, snapshot)
	if met && !metBefore {
		c.mon.Metrics().IncrementQuorumReached(ctx)
		c.mon.Metrics().RecordTimeToQuorum(ctx, now.Sub(record.FirstSeenAt))
	}

	c.publish(ctx, model.MessageDeliveredEvent{
		BaseEvent:      model.NewBaseEvent(now),
		MsgID:          msgID,
		Adapter:        adapterCaller,
		Bridge:         bridgeName,
		SrcChainID:     srcChainID,
		DeliveredCount: record.DeliveredCount(),
		QuorumReached:  met,
	})
	c.logger.Infow("Recorded delivery",
		"msgID", msgID.String(),
		"adapter", adapterCaller.Hex(),
		"bridge", bridgeName,
		"deliveredCount", record.DeliveredCount(),
		"quorumCount", count,
		"quorumReached", met,
	)
	return nil
}

// ScheduleMessageExecution hands a quorum-approved message to the timelock.
// Permissionless: quorum is rechecked against the current registry snapshot,
// so the caller cannot advance anything the adapters did not approve. The
// record is marked executed before scheduling; a message schedules at most
// once.
func (c *Collector) ScheduleMessageExecution(ctx context.Context, msgID protocol.Bytes32) (*model.ScheduledTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, err := c.store.Get(ctx, msgID)
	if err != nil {
		return nil, fmt.Errorf("msgId %s: %w", msgID.String(), mmacommon.ErrRecordNotFound)
	}
	if record.Executed {
		return nil, fmt.Errorf("msgId %s: %w", msgID.String(), mmacommon.ErrMessageAlreadyExecuted)
	}

	now := c.clock.Now()
	msg := record.Message
	if msg.Expiration != 0 && uint64(now.Unix()) >= msg.Expiration {
		return nil, fmt.Errorf("msgId %s expired at %d: %w", msgID.String(), msg.Expiration, mmacommon.ErrMessageExpired)
	}

	snapshot := c.registry.Snapshot()
	met, count := c.validator.CheckQuorum(record, snapshot)
	if !met {
		return nil, fmt.Errorf("msgId %s has %d of %d required deliveries: %w",
			msgID.String(), count, snapshot.Quorum, mmacommon.ErrQuorumNotMet)
	}

	if err := record.MarkExecuted(); err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist executed flag: %w", err)
	}

	tx, err := c.scheduler.Schedule(ctx, c.cfg.Address, msg.Target, msg.Value(), msg.CallData)
	if err != nil {
		// Undo the mark so the message can be rescheduled once the timelock
		// recovers.
		record.Executed = false
		if undoErr := c.store.Put(ctx, record); undoErr != nil {
			c.logger.Errorw("Failed to undo executed flag, message is stuck",
				"msgID", msgID.String(),
				"error", undoErr,
			)
		}
		return nil, fmt.Errorf("failed to schedule execution: %w", err)
	}

	c.mon.Metrics().IncrementScheduled(ctx)
	c.publish(ctx, model.MessageScheduledEvent{
		BaseEvent: model.NewBaseEvent(now),
		MsgID:     msgID,
		TxID:      tx.TxID,
		ETA:       tx.ETA,
	})
	c.logger.Infow("Scheduled message execution",
		"msgID", msgID.String(),
		"txID", tx.TxID.String(),
		"eta", tx.ETA,
	)
	return tx, nil
}

// ReadyForScheduling returns msgIds that currently meet quorum, are not
// executed, and are not expired. Relay workers poll this to drive
// ScheduleMessageExecution.
func (c *Collector) ReadyForScheduling(ctx context.Context) ([]protocol.Bytes32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.store.All(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := c.registry.Snapshot()
	now := uint64(c.clock.Now().Unix())

	var ready []protocol.Bytes32
	for _, record := range records {
		if record.Executed {
			continue
		}
		if record.Message.Expiration != 0 && now >= record.Message.Expiration {
			continue
		}
		if met, _ := c.validator.CheckQuorum(record, snapshot); met {
			ready = append(ready, record.MsgID)
		}
	}
	return ready, nil
}

func (c *Collector) publish(ctx context.Context, event mmacommon.Event) {
	if c.sink != nil {
		c.sink.Publish(ctx, event)
	}
}

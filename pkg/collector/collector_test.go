package collector

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/execution"
	"github.com/multibridge/mma/pkg/model"
	"github.com/multibridge/mma/pkg/monitoring"
	"github.com/multibridge/mma/pkg/protocol"
	"github.com/multibridge/mma/pkg/storage/memory"
	"github.com/multibridge/mma/pkg/timelock"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

var (
	collectorAddr = common.HexToAddress("0x0000000000000000000000000000000000000201")
	conduitAddr   = common.HexToAddress("0x0000000000000000000000000000000000000202")
	targetAddr    = common.HexToAddress("0x0000000000000000000000000000000000000203")

	adapterA = common.HexToAddress("0x0000000000000000000000000000000000000211")
	adapterB = common.HexToAddress("0x0000000000000000000000000000000000000212")
	adapterC = common.HexToAddress("0x0000000000000000000000000000000000000213")
)

type fixture struct {
	collector *Collector
	timelock  *timelock.Timelock
	registry  *execution.TargetRegistry
	clock     *mmacommon.MockTimeProvider
	sink      *mmacommon.CapturingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := mmacommon.NewMockTimeProvider(time.Unix(500_000, 0))
	targets := execution.NewTargetRegistry()
	sink := mmacommon.NewCapturingSink()
	mon := monitoring.NewNoopRelayMonitoring()
	logger := zap.NewNop().Sugar()

	adapterRegistry, err := model.NewAdapterRegistry([]common.Address{adapterA, adapterB, adapterC}, 2)
	require.NoError(t, err)

	tl, err := timelock.NewTimelock(timelock.Config{
		Admin:   collectorAddr,
		Conduit: conduitAddr,
		Delay:   time.Hour,
	}, memory.NewScheduledTransactionStore(), targets, clock, sink, mon, logger)
	require.NoError(t, err)

	c, err := NewCollector(Config{
		ChainID: 2,
		Address: collectorAddr,
		Conduit: conduitAddr,
	}, adapterRegistry, memory.NewMessageRecordStore(), tl, sink, mon, clock, logger)
	require.NoError(t, err)

	return &fixture{collector: c, timelock: tl, registry: targets, clock: clock, sink: sink}
}

func newMessage(t *testing.T, nonce protocol.Nonce, expiration uint64) *protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessage(1, 2, nonce, targetAddr, big.NewInt(0), expiration, []byte{0xca, 0xfe})
	require.NoError(t, err)
	return msg
}

func deliver(t *testing.T, f *fixture, msg *protocol.Message, adapters ...common.Address) {
	t.Helper()
	for _, a := range adapters {
		require.NoError(t, f.collector.ReceiveMessage(context.Background(), a, msg.SrcChainID, "bridge", msg))
	}
}

// flakyScheduler rejects the first failures calls, then accepts.
type flakyScheduler struct {
	failures int
	calls    int
}

func (s *flakyScheduler) Schedule(_ context.Context, _ common.Address, target common.Address, value *big.Int, data []byte) (*model.ScheduledTransaction, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, assert.AnError
	}
	return &model.ScheduledTransaction{
		TxID:   model.ComputeTxID(target, value, data, 1, uint64(s.calls)),
		Target: target,
		Value:  value,
		Data:   data,
		ETA:    1,
		Salt:   uint64(s.calls),
	}, nil
}

func TestReceiveMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered adapter rejected", func(t *testing.T) {
		f := newFixture(t)
		msg := newMessage(t, 1, 0)

		err := f.collector.ReceiveMessage(ctx, common.HexToAddress("0xFF"), 1, "rogue", msg)
		assert.ErrorIs(t, err, mmacommon.ErrNotRegisteredAdapter)
	})

	t.Run("wrong destination chain rejected", func(t *testing.T) {
		f := newFixture(t)
		msg, err := protocol.NewMessage(1, 3, 1, targetAddr, nil, 0, nil)
		require.NoError(t, err)

		err = f.collector.ReceiveMessage(ctx, adapterA, 1, "bridge", msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "this collector serves chain")
	})

	t.Run("duplicate delivery by one adapter counts once", func(t *testing.T) {
		f := newFixture(t)
		msg := newMessage(t, 1, 0)

		deliver(t, f, msg, adapterA)
		err := f.collector.ReceiveMessage(ctx, adapterA, 1, "bridge", msg)
		assert.ErrorIs(t, err, mmacommon.ErrDuplicateDelivery)

		// Still below quorum.
		_, err = f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
		assert.ErrorIs(t, err, mmacommon.ErrQuorumNotMet)
	})

	t.Run("quorum flag flips on threshold delivery", func(t *testing.T) {
		f := newFixture(t)
		msg := newMessage(t, 1, 0)

		deliver(t, f, msg, adapterA, adapterB)

		events := f.sink.EventsOfType("message_delivered")
		require.Len(t, events, 2)
		first := events[0].(model.MessageDeliveredEvent)
		second := events[1].(model.MessageDeliveredEvent)
		assert.False(t, first.QuorumReached)
		assert.True(t, second.QuorumReached)
	})
}

func TestScheduleMessageExecution(t *testing.T) {
	ctx := context.Background()

	t.Run("end to end through the timelock", func(t *testing.T) {
		f := newFixture(t)

		var executedData []byte
		f.registry.Register(targetAddr, func(_ context.Context, caller common.Address, _ *big.Int, data []byte) ([]byte, error) {
			executedData = data
			assert.Equal(t, conduitAddr, caller)
			return nil, nil
		})

		msg := newMessage(t, 1, 0)
		deliver(t, f, msg, adapterA, adapterB)

		tx, err := f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
		require.NoError(t, err)

		f.clock.AdvanceTime(2 * time.Hour)
		result, err := f.timelock.Execute(ctx, tx.Target, tx.ValueOrZero(), tx.Data, tx.ETA, tx.Salt)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, []byte{0xca, 0xfe}, executedData)
	})

	t.Run("unknown message", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.collector.ScheduleMessageExecution(ctx, protocol.Bytes32{1})
		assert.ErrorIs(t, err, mmacommon.ErrRecordNotFound)
	})

	t.Run("below quorum", func(t *testing.T) {
		f := newFixture(t)
		msg := newMessage(t, 1, 0)
		deliver(t, f, msg, adapterA)

		_, err := f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
		assert.ErrorIs(t, err, mmacommon.ErrQuorumNotMet)
	})

	t.Run("schedules at most once", func(t *testing.T) {
		f := newFixture(t)
		msg := newMessage(t, 1, 0)
		deliver(t, f, msg, adapterA, adapterB)

		_, err := f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
		require.NoError(t, err)
		_, err = f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
		assert.ErrorIs(t, err, mmacommon.ErrMessageAlreadyExecuted)

		// Late deliveries after scheduling are rejected too.
		err = f.collector.ReceiveMessage(ctx, adapterC, 1, "bridge", msg)
		assert.ErrorIs(t, err, mmacommon.ErrMessageAlreadyExecuted)
	})

	t.Run("expired message", func(t *testing.T) {
		f := newFixture(t)
		msg := newMessage(t, 1, 500_100)
		deliver(t, f, msg, adapterA, adapterB)

		f.clock.AdvanceTime(200 * time.Second)
		_, err := f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
		assert.ErrorIs(t, err, mmacommon.ErrMessageExpired)
	})

	t.Run("scheduler rejection leaves message reschedulable", func(t *testing.T) {
		clock := mmacommon.NewMockTimeProvider(time.Unix(500_000, 0))
		adapterRegistry, err := model.NewAdapterRegistry([]common.Address{adapterA, adapterB, adapterC}, 2)
		require.NoError(t, err)
		scheduler := &flakyScheduler{failures: 1}

		c, err := NewCollector(Config{
			ChainID: 2,
			Address: collectorAddr,
			Conduit: conduitAddr,
		}, adapterRegistry, memory.NewMessageRecordStore(), scheduler, mmacommon.NewCapturingSink(),
			monitoring.NewNoopRelayMonitoring(), clock, zap.NewNop().Sugar())
		require.NoError(t, err)

		msg := newMessage(t, 1, 0)
		for _, a := range []common.Address{adapterA, adapterB} {
			require.NoError(t, c.ReceiveMessage(ctx, a, msg.SrcChainID, "bridge", msg))
		}

		// The first attempt fails in the scheduler; the executed mark must be
		// rolled back so a later attempt can still go through.
		_, err = c.ScheduleMessageExecution(ctx, msg.MustMessageID())
		require.ErrorIs(t, err, assert.AnError)

		_, err = c.ScheduleMessageExecution(ctx, msg.MustMessageID())
		require.NoError(t, err)
		assert.Equal(t, 2, scheduler.calls)
	})

	t.Run("registry shrink invalidates counted votes", func(t *testing.T) {
		f := newFixture(t)
		msg := newMessage(t, 1, 0)
		deliver(t, f, msg, adapterA, adapterB)

		// adapterB is removed before anyone schedules; its vote stops counting.
		require.NoError(t, f.collector.Registry().Remove([]common.Address{adapterB}))

		_, err := f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
		assert.ErrorIs(t, err, mmacommon.ErrQuorumNotMet)

		// A still-registered adapter restores quorum.
		deliver(t, f, msg, adapterC)
		_, err = f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
		require.NoError(t, err)
	})
}

func TestReadyForScheduling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	below := newMessage(t, 1, 0)
	ready := newMessage(t, 2, 0)
	expired := newMessage(t, 3, 500_100)

	deliver(t, f, below, adapterA)
	deliver(t, f, ready, adapterA, adapterB)
	deliver(t, f, expired, adapterA, adapterB)

	f.clock.AdvanceTime(200 * time.Second)

	ids, err := f.collector.ReadyForScheduling(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, ready.MustMessageID(), ids[0])
}

func TestHandleGovernanceCall(t *testing.T) {
	ctx := context.Background()
	extra := common.HexToAddress("0x0000000000000000000000000000000000000214")

	t.Run("conduit only", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.collector.HandleGovernanceCall(ctx, collectorAddr, nil, EncodeSetQuorum(3))
		assert.ErrorIs(t, err, mmacommon.ErrNotSelf)
	})

	t.Run("add remove and set quorum", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, EncodeAddAdapters([]common.Address{extra}))
		require.NoError(t, err)
		assert.True(t, f.collector.Registry().Contains(extra))

		_, err = f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, EncodeSetQuorum(4))
		require.NoError(t, err)
		assert.Equal(t, uint64(4), f.collector.Registry().Quorum())

		// Dropping below the new quorum is rejected.
		_, err = f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, EncodeRemoveAdapters([]common.Address{extra}))
		assert.ErrorIs(t, err, mmacommon.ErrQuorumExceedsAdapters)

		_, err = f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, EncodeSetQuorum(2))
		require.NoError(t, err)
		_, err = f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, EncodeRemoveAdapters([]common.Address{extra}))
		require.NoError(t, err)
		assert.False(t, f.collector.Registry().Contains(extra))
	})

	t.Run("quorum above adapter count rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, EncodeSetQuorum(4))
		assert.ErrorIs(t, err, mmacommon.ErrQuorumExceedsAdapters)
	})

	t.Run("malformed calldata", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, nil)
		require.Error(t, err)
		_, err = f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, []byte{0x99})
		require.Error(t, err)
		_, err = f.collector.HandleGovernanceCall(ctx, conduitAddr, nil, []byte{opAddAdapters, 0x00})
		require.Error(t, err)
	})
}

func TestGovernanceThroughQuorumPipeline(t *testing.T) {
	// Scenario: the adapter set itself is changed by a cross-chain message
	// that targets the collector and passes quorum plus the timelock delay.
	ctx := context.Background()
	f := newFixture(t)
	f.registry.Register(collectorAddr, f.collector.HandleGovernanceCall)

	extra := common.HexToAddress("0x0000000000000000000000000000000000000214")
	data := EncodeAddAdapters([]common.Address{extra})
	msg, err := protocol.NewMessage(1, 2, 1, collectorAddr, nil, 0, data)
	require.NoError(t, err)

	deliver(t, f, msg, adapterA, adapterB)

	tx, err := f.collector.ScheduleMessageExecution(ctx, msg.MustMessageID())
	require.NoError(t, err)

	f.clock.AdvanceTime(2 * time.Hour)
	result, err := f.timelock.Execute(ctx, tx.Target, tx.ValueOrZero(), tx.Data, tx.ETA, tx.Salt)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, f.collector.Registry().Contains(extra))
}

package relay

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/adapter"
	"github.com/multibridge/mma/pkg/collector"
	"github.com/multibridge/mma/pkg/configuration"
	"github.com/multibridge/mma/pkg/dispatch"
	"github.com/multibridge/mma/pkg/monitoring"
	"github.com/multibridge/mma/pkg/protocol"
	"github.com/multibridge/mma/pkg/storage/memory"
	"github.com/multibridge/mma/pkg/timelock"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

var (
	collectorAddr = common.HexToAddress("0x0000000000000000000000000000000000000201")
	conduitAddr   = common.HexToAddress("0x0000000000000000000000000000000000000202")
	timelockAddr  = common.HexToAddress("0x0000000000000000000000000000000000000203")
	targetAddr    = common.HexToAddress("0x0000000000000000000000000000000000000204")

	dispatcherAddr = common.HexToAddress("0x0000000000000000000000000000000000000301")
	ownerAddr      = common.HexToAddress("0x0000000000000000000000000000000000000302")
	appAddr        = common.HexToAddress("0x0000000000000000000000000000000000000303")

	receiverAddrs = []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000211"),
		common.HexToAddress("0x0000000000000000000000000000000000000212"),
		common.HexToAddress("0x0000000000000000000000000000000000000213"),
	}
)

const nodeConfig = `
nodeID = "relay-test"
chainID = 2
collectorAddress = "0x0000000000000000000000000000000000000201"
conduitAddress = "0x0000000000000000000000000000000000000202"
timelockAddress = "0x0000000000000000000000000000000000000203"

[quorum]
adapters = [
  "0x0000000000000000000000000000000000000211",
  "0x0000000000000000000000000000000000000212",
  "0x0000000000000000000000000000000000000213",
]
threshold = 2

[timelock]
delay = 3600000000000

[worker]
interval = 1000000000
`

// harness is a full two-chain setup: dispatcher and three loopback bridges
// on the source side, a relay node on the destination side.
type harness struct {
	node       *Node
	dispatcher *dispatch.Dispatcher
	bridges    []*adapter.LoopbackBridge
	clock      *mmacommon.MockTimeProvider
	sink       *mmacommon.CapturingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop().Sugar()
	mon := monitoring.NewNoopRelayMonitoring()
	sink := mmacommon.NewCapturingSink()
	clock := mmacommon.NewMockTimeProvider(time.Unix(1_000_000, 0))

	cfg, err := configuration.LoadConfigString(nodeConfig)
	require.NoError(t, err)

	node, err := NewNodeWithClock(ctx, cfg, sink, mon, clock, logger)
	require.NoError(t, err)

	ledger := dispatch.NewFeeLedger()
	dispatcher, err := dispatch.NewDispatcher(dispatch.DispatcherConfig{
		SrcChainID:       1,
		Address:          dispatcherAddr,
		Owner:            ownerAddr,
		SuccessThreshold: 2,
	}, memory.NewNonceStore(), ledger, sink, mon, clock, logger)
	require.NoError(t, err)
	require.NoError(t, dispatcher.SetAuthorizedCaller(ownerAddr, appAddr, true))
	ledger.Credit(appAddr, big.NewInt(10_000))

	bridges := make([]*adapter.LoopbackBridge, len(receiverAddrs))
	senderAdapters := make([]adapter.SenderAdapter, len(receiverAddrs))
	for i, receiverAddr := range receiverAddrs {
		senderAddr := common.BytesToAddress([]byte{0x31, byte(i + 1)})
		routerAddr := common.BytesToAddress([]byte{0x32, byte(i + 1)})

		bridge, err := adapter.NewLoopbackBridge(adapter.LoopbackConfig{
			Name:          fmt.Sprintf("bridge-%d", i+1),
			SenderAddress: senderAddr,
			RouterAddress: routerAddr,
			Fee:           big.NewInt(10),
			AutoFlush:     true,
		})
		require.NoError(t, err)

		receiver, err := adapter.NewBridgeReceiver(adapter.BridgeReceiverConfig{
			BridgeName:       bridge.Name(),
			Address:          receiverAddr,
			BridgeRouter:     routerAddr,
			CollectorAddress: collectorAddr,
			TrustedSenders:   map[protocol.ChainID]common.Address{1: senderAddr},
		}, node.Collector, logger)
		require.NoError(t, err)

		bridge.ConnectReceiver(2, receiver, collectorAddr)
		bridges[i] = bridge
		senderAdapters[i] = bridge
	}
	require.NoError(t, dispatcher.AddSenderAdapters(ownerAddr, senderAdapters))

	return &harness{node: node, dispatcher: dispatcher, bridges: bridges, clock: clock, sink: sink}
}

func (h *harness) dispatchAndSettle(t *testing.T, req dispatch.DispatchRequest) protocol.Bytes32 {
	t.Helper()
	ctx := context.Background()

	result, err := h.dispatcher.DispatchMessage(ctx, appAddr, big.NewInt(100), req)
	require.NoError(t, err)

	// One scan schedules the quorum-ready message, the post-delay scan
	// executes the ripe transaction.
	h.node.Worker.Scan(ctx)
	h.clock.AdvanceTime(2 * time.Hour)
	h.node.Worker.Scan(ctx)

	return result.MsgID
}

func TestNodeEndToEnd(t *testing.T) {
	ctx := context.Background()

	t.Run("message travels dispatch to execution", func(t *testing.T) {
		h := newHarness(t)

		var executed [][]byte
		h.node.Targets.Register(targetAddr, func(_ context.Context, caller common.Address, _ *big.Int, data []byte) ([]byte, error) {
			assert.Equal(t, conduitAddr, caller)
			executed = append(executed, data)
			return nil, nil
		})

		h.dispatchAndSettle(t, dispatch.DispatchRequest{
			DstChainID: 2,
			Target:     targetAddr,
			CallData:   []byte{0xca, 0xfe},
		})

		require.Len(t, executed, 1)
		assert.Equal(t, []byte{0xca, 0xfe}, executed[0])

		assert.Len(t, h.sink.EventsOfType("message_scheduled"), 1)
		events := h.sink.EventsOfType("transaction_executed")
		require.Len(t, events, 1)
	})

	t.Run("quorum survives one silent bridge", func(t *testing.T) {
		h := newHarness(t)
		h.bridges[2].SetDropDeliveries(true)

		var executed int
		h.node.Targets.Register(targetAddr, func(context.Context, common.Address, *big.Int, []byte) ([]byte, error) {
			executed++
			return nil, nil
		})

		h.dispatchAndSettle(t, dispatch.DispatchRequest{
			DstChainID: 2,
			Target:     targetAddr,
			CallData:   []byte{1},
		})
		assert.Equal(t, 1, executed)
	})

	t.Run("single bridge is not enough", func(t *testing.T) {
		h := newHarness(t)
		h.bridges[1].SetDropDeliveries(true)
		h.bridges[2].SetDropDeliveries(true)

		var executed int
		h.node.Targets.Register(targetAddr, func(context.Context, common.Address, *big.Int, []byte) ([]byte, error) {
			executed++
			return nil, nil
		})

		result, err := h.dispatcher.DispatchMessage(ctx, appAddr, big.NewInt(100), dispatch.DispatchRequest{
			DstChainID: 2,
			Target:     targetAddr,
			CallData:   []byte{1},
		})
		require.NoError(t, err)

		h.node.Worker.Scan(ctx)
		h.clock.AdvanceTime(2 * time.Hour)
		h.node.Worker.Scan(ctx)

		assert.Equal(t, 0, executed)
		_, err = h.node.Collector.ScheduleMessageExecution(ctx, result.MsgID)
		assert.ErrorIs(t, err, mmacommon.ErrQuorumNotMet)
	})

	t.Run("quorum change through its own pipeline", func(t *testing.T) {
		h := newHarness(t)

		h.dispatchAndSettle(t, dispatch.DispatchRequest{
			DstChainID: 2,
			Target:     collectorAddr,
			CallData:   collector.EncodeSetQuorum(3),
		})

		assert.Equal(t, uint64(3), h.node.Collector.Registry().Quorum())
	})

	t.Run("timelock delay change through the pipeline", func(t *testing.T) {
		h := newHarness(t)

		// The collector schedules against the timelock, but the new delay is
		// itself a scheduled call to the timelock's own address.
		h.dispatchAndSettle(t, dispatch.DispatchRequest{
			DstChainID: 2,
			Target:     timelockAddr,
			CallData:   timelock.EncodeSetDelay(2 * time.Hour),
		})

		assert.Equal(t, 2*time.Hour, h.node.Timelock.Delay())
	})

	t.Run("worker health goes healthy after scans", func(t *testing.T) {
		h := newHarness(t)

		healthBefore := h.node.Worker.HealthCheck(ctx)
		assert.Equal(t, mmacommon.HealthStatusDegraded, healthBefore.Status)

		h.node.Worker.Scan(ctx)
		healthAfter := h.node.Worker.HealthCheck(ctx)
		assert.Equal(t, mmacommon.HealthStatusHealthy, healthAfter.Status)
	})
}

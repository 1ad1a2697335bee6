package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/multibridge/mma/pkg/protocol"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// LoopbackBridge is a SenderAdapter backed by an in-process transport: a
// dispatched message is queued and delivered to the destination receiver on
// Flush, or immediately when auto-flush is on. It stands in for a real bridge
// SDK in tests and in the single-process simulator, and lets tests control
// delivery interleaving and inject transport faults.
type LoopbackBridge struct {
	name       string
	senderAddr common.Address
	routerAddr common.Address
	fee        *big.Int
	autoFlush  bool

	mu               sync.Mutex
	receiverAdapters map[protocol.ChainID]common.Address
	collectors       map[protocol.ChainID]common.Address
	receivers        map[protocol.ChainID]*BridgeReceiver
	queue            []IncomingEnvelope
	failDispatch     bool
	dropDeliveries   bool
}

// LoopbackConfig configures one loopback bridge lane.
type LoopbackConfig struct {
	Name string
	// SenderAddress is the identity this bridge's deliveries claim to
	// originate from.
	SenderAddress common.Address
	// RouterAddress is the identity deliveries are made under. Receivers
	// must list it as their bridge router.
	RouterAddress common.Address
	// Fee quoted for every message; nil means free.
	Fee *big.Int
	// AutoFlush delivers synchronously on dispatch instead of queueing.
	AutoFlush bool
}

func NewLoopbackBridge(cfg LoopbackConfig) (*LoopbackBridge, error) {
	if cfg.Name == "" {
		return nil, errors.New("bridge name must not be empty")
	}
	if cfg.SenderAddress == (common.Address{}) || cfg.RouterAddress == (common.Address{}) {
		return nil, mmacommon.ErrZeroAddress
	}
	fee := cfg.Fee
	if fee == nil {
		fee = new(big.Int)
	}
	return &LoopbackBridge{
		name:             cfg.Name,
		senderAddr:       cfg.SenderAddress,
		routerAddr:       cfg.RouterAddress,
		fee:              new(big.Int).Set(fee),
		autoFlush:        cfg.AutoFlush,
		receiverAdapters: make(map[protocol.ChainID]common.Address),
		collectors:       make(map[protocol.ChainID]common.Address),
		receivers:        make(map[protocol.ChainID]*BridgeReceiver),
	}, nil
}

// ConnectReceiver binds the destination-side receiver for a chain. The
// receiver's address doubles as the payload's receiverAdapter field.
func (b *LoopbackBridge) ConnectReceiver(dstChainID protocol.ChainID, receiver *BridgeReceiver, collectorAddr common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receivers[dstChainID] = receiver
	b.receiverAdapters[dstChainID] = receiver.Address()
	b.collectors[dstChainID] = collectorAddr
}

// SetFailDispatch makes DispatchMessage fail until cleared.
func (b *LoopbackBridge) SetFailDispatch(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failDispatch = fail
}

// SetDropDeliveries makes the bridge accept dispatches but never deliver
// them, simulating a bridge that silently loses traffic.
func (b *LoopbackBridge) SetDropDeliveries(drop bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropDeliveries = drop
}

func (b *LoopbackBridge) Name() string {
	return b.name
}

func (b *LoopbackBridge) Address() common.Address {
	return b.senderAddr
}

func (b *LoopbackBridge) GetMessageFee(_ context.Context, _ *protocol.Message) (*big.Int, error) {
	return new(big.Int).Set(b.fee), nil
}

// DispatchMessage wraps the message in this bridge's payload and queues it
// for the destination receiver.
func (b *LoopbackBridge) DispatchMessage(ctx context.Context, msg *protocol.Message, fee *big.Int) (protocol.Bytes32, error) {
	if msg == nil {
		return protocol.Bytes32{}, errors.New("message must not be nil")
	}
	if fee == nil || fee.Cmp(b.fee) < 0 {
		return protocol.Bytes32{}, fmt.Errorf("insufficient bridge fee: need %s", b.fee.String())
	}

	b.mu.Lock()
	if b.failDispatch {
		b.mu.Unlock()
		return protocol.Bytes32{}, fmt.Errorf("bridge %s unavailable", b.name)
	}
	receiverAddr, ok := b.receiverAdapters[msg.DstChainID]
	collectorAddr := b.collectors[msg.DstChainID]
	b.mu.Unlock()
	if !ok {
		return protocol.Bytes32{}, fmt.Errorf("no receiver adapter configured for chain %d", msg.DstChainID)
	}

	payload, err := protocol.NewAdapterPayload(msg, b.senderAddr, receiverAddr, collectorAddr)
	if err != nil {
		return protocol.Bytes32{}, fmt.Errorf("failed to build adapter payload: %w", err)
	}
	encoded, err := payload.Encode()
	if err != nil {
		return protocol.Bytes32{}, fmt.Errorf("failed to encode adapter payload: %w", err)
	}

	env := IncomingEnvelope{
		BridgeCaller:  b.routerAddr,
		SrcChainID:    msg.SrcChainID,
		SenderAdapter: b.senderAddr,
		Payload:       encoded,
	}

	b.mu.Lock()
	if !b.dropDeliveries {
		b.queue = append(b.queue, env)
	}
	b.mu.Unlock()

	if b.autoFlush {
		// Delivery faults are the bridge's problem, not the dispatcher's:
		// a real bridge accepts the message and fails later, off-chain.
		_ = b.Flush(ctx, msg.DstChainID)
	}

	return payload.MsgID, nil
}

// Flush delivers all queued envelopes for a destination chain in dispatch
// order and returns the per-delivery errors.
func (b *LoopbackBridge) Flush(ctx context.Context, dstChainID protocol.ChainID) []error {
	b.mu.Lock()
	receiver := b.receivers[dstChainID]
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	if receiver == nil {
		return []error{fmt.Errorf("no receiver connected for chain %d", dstChainID)}
	}

	var errs []error
	for _, env := range pending {
		if err := receiver.ExecuteIncoming(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// PendingCount reports how many deliveries are queued.
func (b *LoopbackBridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// UpdateReceiverAdapter retargets the receiver counterpart for the given
// chains. A zero address removes the entry.
func (b *LoopbackBridge) UpdateReceiverAdapter(_ context.Context, dstChainIDs []protocol.ChainID, receiverAdapters []common.Address) error {
	if len(dstChainIDs) != len(receiverAdapters) {
		return mmacommon.ErrLengthMismatch
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, chainID := range dstChainIDs {
		if chainID == 0 {
			return mmacommon.ErrZeroChainID
		}
		if receiverAdapters[i] == (common.Address{}) {
			delete(b.receiverAdapters, chainID)
			continue
		}
		b.receiverAdapters[chainID] = receiverAdapters[i]
	}
	return nil
}

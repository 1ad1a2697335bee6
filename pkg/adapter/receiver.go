package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/protocol"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

var (
	// ErrUntrustedSenderAdapter is returned when the remote sender named in a
	// delivery is not the configured counterpart for that source chain.
	ErrUntrustedSenderAdapter = errors.New("sender adapter is not the trusted counterpart")
	// ErrAlreadyProcessed is returned when this receiver has already forwarded
	// the payload for a msgId.
	ErrAlreadyProcessed = errors.New("payload already processed by this receiver")
)

// IncomingEnvelope is what a bridge hands to a receiver on delivery: the
// identity the bridge infrastructure calls under, the chain and adapter the
// payload claims to originate from, and the opaque payload bytes.
type IncomingEnvelope struct {
	BridgeCaller  common.Address
	SrcChainID    protocol.ChainID
	SenderAdapter common.Address
	Payload       []byte
}

// BridgeReceiverConfig wires one receiver to its bridge and its collector.
type BridgeReceiverConfig struct {
	// BridgeName labels forwarded deliveries, e.g. "axelar".
	BridgeName string
	// Address is the receiver's own address, matched against the payload's
	// receiverAdapter field.
	Address common.Address
	// BridgeRouter is the only identity allowed to deliver payloads.
	BridgeRouter common.Address
	// CollectorAddress is matched against the payload's finalDestination.
	CollectorAddress common.Address
	// TrustedSenders maps each source chain to the one sender adapter this
	// receiver accepts deliveries from.
	TrustedSenders map[protocol.ChainID]common.Address
}

// BridgeReceiver validates bridge deliveries before they reach the collector:
// only the configured bridge router may deliver, only the trusted remote
// counterpart may originate, the payload must be addressed to this receiver
// and this collector, and each msgId is forwarded at most once.
type BridgeReceiver struct {
	cfg       BridgeReceiverConfig
	collector MessageCollector
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	processed map[protocol.Bytes32]struct{}
}

func NewBridgeReceiver(cfg BridgeReceiverConfig, collector MessageCollector, logger *zap.SugaredLogger) (*BridgeReceiver, error) {
	if cfg.BridgeName == "" {
		return nil, errors.New("bridge name must not be empty")
	}
	if cfg.Address == (common.Address{}) || cfg.BridgeRouter == (common.Address{}) || cfg.CollectorAddress == (common.Address{}) {
		return nil, mmacommon.ErrZeroAddress
	}
	if collector == nil {
		return nil, errors.New("collector must not be nil")
	}
	return &BridgeReceiver{
		cfg:       cfg,
		collector: collector,
		logger:    logger.With("bridge", cfg.BridgeName),
		processed: make(map[protocol.Bytes32]struct{}),
	}, nil
}

// Address returns the receiver's own address.
func (r *BridgeReceiver) Address() common.Address {
	return r.cfg.Address
}

// SetTrustedSender retargets the counterpart for a source chain. The zero
// address removes the entry, cutting that chain off.
func (r *BridgeReceiver) SetTrustedSender(srcChainID protocol.ChainID, sender common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sender == (common.Address{}) {
		delete(r.cfg.TrustedSenders, srcChainID)
		return
	}
	if r.cfg.TrustedSenders == nil {
		r.cfg.TrustedSenders = make(map[protocol.ChainID]common.Address)
	}
	r.cfg.TrustedSenders[srcChainID] = sender
}

// ExecuteIncoming validates one delivery and forwards the decoded message to
// the collector. The processed mark is set only after the collector accepts,
// so a rejected delivery can be retried by the bridge.
func (r *BridgeReceiver) ExecuteIncoming(ctx context.Context, env IncomingEnvelope) error {
	if env.BridgeCaller != r.cfg.BridgeRouter {
		return fmt.Errorf("caller %s is not the bridge router: %w", env.BridgeCaller.Hex(), mmacommon.ErrUnauthorizedCaller)
	}

	r.mu.Lock()
	trusted, ok := r.cfg.TrustedSenders[env.SrcChainID]
	r.mu.Unlock()
	if !ok || trusted != env.SenderAdapter {
		return fmt.Errorf("chain %d sender %s: %w", env.SrcChainID, env.SenderAdapter.Hex(), ErrUntrustedSenderAdapter)
	}

	payload, err := protocol.DecodeAdapterPayload(env.Payload)
	if err != nil {
		return fmt.Errorf("failed to decode adapter payload: %w", err)
	}

	msg, err := payload.Validate(r.cfg.Address, r.cfg.CollectorAddress)
	if err != nil {
		return fmt.Errorf("payload validation failed: %w", err)
	}
	if msg.SrcChainID != env.SrcChainID {
		return fmt.Errorf("message src chain %d does not match delivery chain %d: %w",
			msg.SrcChainID, env.SrcChainID, protocol.ErrPayloadMessageMismatch)
	}

	r.mu.Lock()
	_, seen := r.processed[payload.MsgID]
	r.mu.Unlock()
	if seen {
		return fmt.Errorf("msgId %s: %w", payload.MsgID.String(), ErrAlreadyProcessed)
	}

	if err := r.collector.ReceiveMessage(ctx, r.cfg.Address, env.SrcChainID, r.cfg.BridgeName, msg); err != nil {
		return fmt.Errorf("collector rejected message: %w", err)
	}

	r.mu.Lock()
	r.processed[payload.MsgID] = struct{}{}
	r.mu.Unlock()

	r.logger.Infow("Forwarded bridge delivery to collector",
		"msgID", payload.MsgID.String(),
		"srcChainID", env.SrcChainID,
	)
	return nil
}

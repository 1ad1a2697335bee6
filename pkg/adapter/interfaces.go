// Package adapter defines the contract every bridge adapter satisfies and the
// receiver-side validation shim. Concrete bridge SDK integrations live
// outside this module; the dispatcher and collector only ever see these
// interfaces.
package adapter

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/multibridge/mma/pkg/protocol"
)

// SenderAdapter is the fixed capability set of one bridge on the source
// chain: quote a fee, carry a message, retarget its receiver counterpart.
// Implementations translate the canonical message into the bridge's own wire
// format; the dispatcher iterates adapters without caring which bridge backs
// each entry.
type SenderAdapter interface {
	// Name returns the bridge name, used in events and logs.
	Name() string
	// Address returns the adapter's own address on the source chain.
	Address() common.Address
	// GetMessageFee quotes the bridge fee for carrying the message.
	GetMessageFee(ctx context.Context, msg *protocol.Message) (*big.Int, error)
	// DispatchMessage hands the message to the bridge, forwarding fee.
	// It returns the msgId the bridge will deliver under.
	DispatchMessage(ctx context.Context, msg *protocol.Message, fee *big.Int) (protocol.Bytes32, error)
	// UpdateReceiverAdapter retargets the receiver-side counterpart for the
	// given destination chains.
	UpdateReceiverAdapter(ctx context.Context, dstChainIDs []protocol.ChainID, receiverAdapters []common.Address) error
}

// MessageCollector is the receiver-side surface a BridgeReceiver forwards
// validated messages into.
type MessageCollector interface {
	ReceiveMessage(ctx context.Context, adapterCaller common.Address, srcChainID protocol.ChainID, bridgeName string, msg *protocol.Message) error
}

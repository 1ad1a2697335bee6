package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/multibridge/mma/pkg/protocol"
)

// Event is the common surface of protocol events. Off-chain relayers key on
// these to decide when to advance a message.
type Event interface {
	EventType() string
}

// BaseEvent carries the fields every event shares.
type BaseEvent struct {
	ID string    `json:"id"`
	At time.Time `json:"at"`
}

func NewBaseEvent(now time.Time) BaseEvent {
	return BaseEvent{ID: uuid.NewString(), At: now}
}

// AdapterDispatchEvent is emitted once per sender adapter attempt during a
// fan-out, successful or not.
type AdapterDispatchEvent struct {
	BaseEvent
	MsgID   protocol.Bytes32 `json:"msg_id"`
	Adapter common.Address   `json:"adapter"`
	Bridge  string           `json:"bridge"`
	Fee     *big.Int         `json:"fee"`
	Success bool             `json:"success"`
	Reason  string           `json:"reason,omitempty"`
}

func (e AdapterDispatchEvent) EventType() string { return "adapter_dispatch" }

// DispatchSummaryEvent is the aggregate event summarizing one fan-out.
type DispatchSummaryEvent struct {
	BaseEvent
	MsgID        protocol.Bytes32 `json:"msg_id"`
	DstChainID   protocol.ChainID `json:"dst_chain_id"`
	Nonce        protocol.Nonce   `json:"nonce"`
	AdaptersUsed []common.Address `json:"adapters_used"`
	SuccessCount int              `json:"success_count"`
	Refund       *big.Int         `json:"refund"`
}

func (e DispatchSummaryEvent) EventType() string { return "dispatch_summary" }

// MessageDeliveredEvent is emitted per accepted bridge delivery.
type MessageDeliveredEvent struct {
	BaseEvent
	MsgID          protocol.Bytes32 `json:"msg_id"`
	Adapter        common.Address   `json:"adapter"`
	Bridge         string           `json:"bridge"`
	SrcChainID     protocol.ChainID `json:"src_chain_id"`
	DeliveredCount int              `json:"delivered_count"`
	QuorumReached  bool             `json:"quorum_reached"`
}

func (e MessageDeliveredEvent) EventType() string { return "message_delivered" }

// MessageScheduledEvent is emitted when a quorum-reached message is handed to
// the timelock.
type MessageScheduledEvent struct {
	BaseEvent
	MsgID protocol.Bytes32 `json:"msg_id"`
	TxID  protocol.Bytes32 `json:"tx_id"`
	ETA   int64            `json:"eta"`
}

func (e MessageScheduledEvent) EventType() string { return "message_scheduled" }

// TransactionScheduledEvent is emitted by the timelock on schedule.
type TransactionScheduledEvent struct {
	BaseEvent
	TxID   protocol.Bytes32 `json:"tx_id"`
	Target common.Address   `json:"target"`
	ETA    int64            `json:"eta"`
}

func (e TransactionScheduledEvent) EventType() string { return "transaction_scheduled" }

// TransactionExecutedEvent is emitted by the timelock after execution,
// whether the embedded call succeeded or not.
type TransactionExecutedEvent struct {
	BaseEvent
	TxID    protocol.Bytes32 `json:"tx_id"`
	Target  common.Address   `json:"target"`
	Success bool             `json:"success"`
	Reason  string           `json:"reason,omitempty"`
}

func (e TransactionExecutedEvent) EventType() string { return "transaction_executed" }

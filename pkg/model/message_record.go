package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	mmacommon "github.com/multibridge/mma/pkg/common"
	"github.com/multibridge/mma/pkg/protocol"
)

// MessageRecord is the per-msgId aggregation state held by the collector.
//
// Invariants: deliveredBy never shrinks; once Executed is true it never
// becomes false; an adapter appears in deliveredBy at most once, enforced
// before insertion. The record is retained after execution for audit and
// replay rejection.
//
// MessageRecord is not internally synchronized. The collector serializes all
// record mutations, mirroring the single-writer execution model the protocol
// assumes.
type MessageRecord struct {
	MsgID    protocol.Bytes32
	Message  *protocol.Message
	Executed bool
	// FirstSeenAt is the time of the first delivery.
	FirstSeenAt time.Time

	deliveredBy map[common.Address]string // adapter -> bridge name
	// deliveryOrder keeps the insertion order for deterministic iteration.
	deliveryOrder []common.Address
}

// NewMessageRecord creates the record lazily on first delivery.
func NewMessageRecord(msgID protocol.Bytes32, msg *protocol.Message, now time.Time) *MessageRecord {
	return &MessageRecord{
		MsgID:       msgID,
		Message:     msg,
		FirstSeenAt: now,
		deliveredBy: make(map[common.Address]string),
	}
}

// AddDelivery records a delivery from the given adapter. A second delivery by
// the same adapter fails with ErrDuplicateDelivery and leaves the record
// unchanged.
func (r *MessageRecord) AddDelivery(adapter common.Address, bridgeName string) error {
	if _, ok := r.deliveredBy[adapter]; ok {
		return fmt.Errorf("%w: adapter %s, msgId %s", mmacommon.ErrDuplicateDelivery, adapter.Hex(), r.MsgID.String())
	}
	r.deliveredBy[adapter] = bridgeName
	r.deliveryOrder = append(r.deliveryOrder, adapter)
	return nil
}

// HasDelivered reports whether the adapter already delivered this message.
func (r *MessageRecord) HasDelivered(adapter common.Address) bool {
	_, ok := r.deliveredBy[adapter]
	return ok
}

// DeliveredBy returns the adapters that delivered this message, in delivery order.
func (r *MessageRecord) DeliveredBy() []common.Address {
	out := make([]common.Address, len(r.deliveryOrder))
	copy(out, r.deliveryOrder)
	return out
}

// BridgeNameFor returns the bridge name the adapter delivered under.
func (r *MessageRecord) BridgeNameFor(adapter common.Address) (string, bool) {
	name, ok := r.deliveredBy[adapter]
	return name, ok
}

// DeliveredCount returns the number of distinct adapters that delivered.
func (r *MessageRecord) DeliveredCount() int {
	return len(r.deliveredBy)
}

// MarkExecuted flips the executed flag exactly once.
func (r *MessageRecord) MarkExecuted() error {
	if r.Executed {
		return fmt.Errorf("%w: msgId %s", mmacommon.ErrMessageAlreadyExecuted, r.MsgID.String())
	}
	r.Executed = true
	return nil
}

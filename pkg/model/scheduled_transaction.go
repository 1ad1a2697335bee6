package model

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/multibridge/mma/pkg/protocol"
)

// ScheduledTransaction is one queued call held by the timelock.
//
// Invariants: eta >= scheduleTime + minDelay; a transaction executes at most
// once; execution only succeeds within [eta, eta+grace] when a grace period
// is configured, otherwise any time >= eta.
type ScheduledTransaction struct {
	TxID   protocol.Bytes32
	Target common.Address
	Value  *big.Int
	Data   protocol.ByteSlice
	// ETA is the earliest execution time, unix seconds.
	ETA int64
	// Salt disambiguates otherwise-identical operations scheduled at the
	// same eta. Allocated monotonically by the timelock.
	Salt        uint64
	Executed    bool
	ScheduledAt time.Time
}

// ComputeTxID derives the transaction identifier from the full operation
// description. Execute recomputes this hash from caller-supplied parameters
// and compares it against the stored record, so any parameter tampering
// produces an unknown id.
func ComputeTxID(target common.Address, value *big.Int, data []byte, eta int64, salt uint64) protocol.Bytes32 {
	var buf bytes.Buffer

	_, _ = buf.Write(target.Bytes())

	valueBytes := make([]byte, 32)
	if value != nil {
		value.FillBytes(valueBytes)
	}
	_, _ = buf.Write(valueBytes)

	dataHash := protocol.Keccak256(data)
	_, _ = buf.Write(dataHash[:])

	_ = binary.Write(&buf, binary.BigEndian, uint64(eta)) //nolint:gosec // eta is a unix timestamp
	_ = binary.Write(&buf, binary.BigEndian, salt)

	return protocol.Keccak256(buf.Bytes())
}

// ValueOrZero returns the transaction value, never nil.
func (tx *ScheduledTransaction) ValueOrZero() *big.Int {
	if tx.Value == nil {
		return new(big.Int)
	}
	return tx.Value
}

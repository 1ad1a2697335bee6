package timelock

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Self-call opcodes. Delay and admin changes are encoded as calldata,
// scheduled against the timelock's own address and executed through its own
// queue, so parameter changes observe the same delay as everything else.
const (
	opSetDelay byte = 0x01
	opSetAdmin byte = 0x02
)

// EncodeSetDelay builds the calldata for a delay change.
func EncodeSetDelay(delay time.Duration) []byte {
	data := make([]byte, 9)
	data[0] = opSetDelay
	binary.BigEndian.PutUint64(data[1:], uint64(delay.Seconds())) //nolint:gosec // delays are short positive durations
	return data
}

// EncodeSetAdmin builds the calldata for an admin change.
func EncodeSetAdmin(admin common.Address) []byte {
	data := make([]byte, 1+common.AddressLength)
	data[0] = opSetAdmin
	copy(data[1:], admin.Bytes())
	return data
}

// HandleSelfCall dispatches a queued configuration call against the timelock
// itself. It satisfies execution.CallHandler, so wiring is one Register call
// on the in-process target registry.
func (t *Timelock) HandleSelfCall(_ context.Context, caller common.Address, _ *big.Int, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty self-call data")
	}

	switch data[0] {
	case opSetDelay:
		if len(data) != 9 {
			return nil, fmt.Errorf("malformed setDelay calldata: %d bytes", len(data))
		}
		delay := time.Duration(binary.BigEndian.Uint64(data[1:])) * time.Second //nolint:gosec // bounded by SetDelay
		if err := t.SetDelay(caller, delay); err != nil {
			return nil, err
		}
		return nil, nil
	case opSetAdmin:
		if len(data) != 1+common.AddressLength {
			return nil, fmt.Errorf("malformed setAdmin calldata: %d bytes", len(data))
		}
		if err := t.SetAdmin(caller, common.BytesToAddress(data[1:])); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown self-call opcode %#x", data[0])
	}
}

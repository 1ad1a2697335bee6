package collector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// Governance opcodes. Registry changes are carried as ordinary cross-chain
// messages targeting the collector itself, so they need quorum and the
// timelock delay like any other call.
const (
	opAddAdapters    byte = 0x01
	opRemoveAdapters byte = 0x02
	opSetQuorum      byte = 0x03
)

// EncodeAddAdapters builds governance calldata registering the given adapters.
func EncodeAddAdapters(adapters []common.Address) []byte {
	return encodeAdapterList(opAddAdapters, adapters)
}

// EncodeRemoveAdapters builds governance calldata deregistering the given adapters.
func EncodeRemoveAdapters(adapters []common.Address) []byte {
	return encodeAdapterList(opRemoveAdapters, adapters)
}

// EncodeSetQuorum builds governance calldata changing the quorum threshold.
func EncodeSetQuorum(quorum uint64) []byte {
	data := make([]byte, 9)
	data[0] = opSetQuorum
	binary.BigEndian.PutUint64(data[1:], quorum)
	return data
}

func encodeAdapterList(op byte, adapters []common.Address) []byte {
	data := make([]byte, 3, 3+len(adapters)*common.AddressLength)
	data[0] = op
	binary.BigEndian.PutUint16(data[1:], uint16(len(adapters))) //nolint:gosec // adapter sets are small
	for _, a := range adapters {
		data = append(data, a.Bytes()...)
	}
	return data
}

func decodeAdapterList(data []byte) ([]common.Address, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("truncated adapter list")
	}
	count := int(binary.BigEndian.Uint16(data))
	if len(data) != 2+count*common.AddressLength {
		return nil, fmt.Errorf("adapter list length mismatch: %d entries, %d bytes", count, len(data))
	}
	adapters := make([]common.Address, count)
	for i := range adapters {
		offset := 2 + i*common.AddressLength
		adapters[i] = common.BytesToAddress(data[offset : offset+common.AddressLength])
	}
	return adapters, nil
}

// HandleGovernanceCall applies a queued governance call to the registry. Only
// the timelock's conduit may call, which means every mutation here survived
// quorum and the delay. Satisfies execution.CallHandler.
func (c *Collector) HandleGovernanceCall(ctx context.Context, caller common.Address, _ *big.Int, data []byte) ([]byte, error) {
	if caller != c.cfg.Conduit {
		return nil, fmt.Errorf("caller %s: %w", caller.Hex(), mmacommon.ErrNotSelf)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty governance calldata")
	}

	switch data[0] {
	case opAddAdapters:
		adapters, err := decodeAdapterList(data[1:])
		if err != nil {
			return nil, err
		}
		if err := c.registry.Add(adapters); err != nil {
			return nil, err
		}
	case opRemoveAdapters:
		adapters, err := decodeAdapterList(data[1:])
		if err != nil {
			return nil, err
		}
		if err := c.registry.Remove(adapters); err != nil {
			return nil, err
		}
	case opSetQuorum:
		if len(data) != 9 {
			return nil, fmt.Errorf("malformed setQuorum calldata: %d bytes", len(data))
		}
		if err := c.registry.SetQuorum(binary.BigEndian.Uint64(data[1:])); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown governance opcode %#x", data[0])
	}

	c.mon.Metrics().SetRegistrySize(ctx, c.registry.Len())
	c.mon.Metrics().SetQuorumThreshold(ctx, c.registry.Quorum())
	c.logger.Infow("Applied governance call",
		"opcode", data[0],
		"registrySize", c.registry.Len(),
		"quorum", c.registry.Quorum(),
	)
	return nil, nil
}

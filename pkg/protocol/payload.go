package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// Named payload rejections. Receiver adapters surface these so off-chain
// relayers can tell a misrouted payload from a transient failure.
var (
	// ErrWrongReceiverAdapter is returned when a payload names a receiver
	// adapter other than the one decoding it.
	ErrWrongReceiverAdapter = errors.New("payload receiver adapter mismatch")
	// ErrWrongFinalDestination is returned when a payload names a collector
	// other than the one the receiver adapter is configured with.
	ErrWrongFinalDestination = errors.New("payload final destination mismatch")
	// ErrPayloadMessageMismatch is returned when the embedded message does not
	// hash to the payload's msgId.
	ErrPayloadMessageMismatch = errors.New("payload msgId does not match embedded message")
)

// minEncodedPayloadSize is version(1) + msgId(32) + senderCaller(20) +
// receiverAdapter(20) + finalDestination(20) + dataLen(4).
const minEncodedPayloadSize = 97

// AdapterPayload is the envelope each sender adapter carries across its
// bridge. The receiverAdapter and finalDestination fields pin the payload to
// one adapter/collector pair, defeating adapter and destination confusion.
type AdapterPayload struct {
	MsgID            Bytes32        `json:"msg_id"`
	SenderCaller     common.Address `json:"sender_caller"`
	ReceiverAdapter  common.Address `json:"receiver_adapter"`
	FinalDestination common.Address `json:"final_destination"`
	// Data is the canonical encoding of the Message.
	Data ByteSlice `json:"data"`
}

// NewAdapterPayload builds the payload for one adapter from the canonical message.
func NewAdapterPayload(msg *Message, senderCaller, receiverAdapter, finalDestination common.Address) (*AdapterPayload, error) {
	encoded, err := msg.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	return &AdapterPayload{
		MsgID:            Keccak256(encoded),
		SenderCaller:     senderCaller,
		ReceiverAdapter:  receiverAdapter,
		FinalDestination: finalDestination,
		Data:             encoded,
	}, nil
}

// Encode returns the canonical encoding of this payload.
func (p *AdapterPayload) Encode() ([]byte, error) {
	if len(p.Data) > math.MaxUint32 {
		return nil, fmt.Errorf("payload data too large")
	}

	var buf bytes.Buffer

	_ = buf.WriteByte(MessageVersion)
	_, _ = buf.Write(p.MsgID[:])
	_, _ = buf.Write(p.SenderCaller.Bytes())
	_, _ = buf.Write(p.ReceiverAdapter.Bytes())
	_, _ = buf.Write(p.FinalDestination.Bytes())

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(p.Data))); err != nil {
		return nil, err
	}
	_, _ = buf.Write(p.Data)

	return buf.Bytes(), nil
}

// DecodeAdapterPayload decodes an AdapterPayload from its canonical encoding.
func DecodeAdapterPayload(data []byte) (*AdapterPayload, error) {
	if len(data) < minEncodedPayloadSize {
		return nil, fmt.Errorf("data too short for adapter payload")
	}

	reader := bytes.NewReader(data)
	p := &AdapterPayload{}

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != MessageVersion {
		return nil, fmt.Errorf("unsupported payload version %d", version)
	}

	if _, err := io.ReadFull(reader, p.MsgID[:]); err != nil {
		return nil, fmt.Errorf("failed to read msgId: %w", err)
	}

	addr := make([]byte, common.AddressLength)
	if _, err := io.ReadFull(reader, addr); err != nil {
		return nil, fmt.Errorf("failed to read sender caller: %w", err)
	}
	p.SenderCaller = common.BytesToAddress(addr)

	if _, err := io.ReadFull(reader, addr); err != nil {
		return nil, fmt.Errorf("failed to read receiver adapter: %w", err)
	}
	p.ReceiverAdapter = common.BytesToAddress(addr)

	if _, err := io.ReadFull(reader, addr); err != nil {
		return nil, fmt.Errorf("failed to read final destination: %w", err)
	}
	p.FinalDestination = common.BytesToAddress(addr)

	var dataLen uint32
	if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
		return nil, fmt.Errorf("failed to read data length: %w", err)
	}
	if dataLen == 0 {
		p.Data = nil
	} else {
		if int(dataLen) > reader.Len() {
			return nil, fmt.Errorf("data length %d exceeds remaining bytes %d", dataLen, reader.Len())
		}
		p.Data = make([]byte, dataLen)
		if _, err := io.ReadFull(reader, p.Data); err != nil {
			return nil, fmt.Errorf("failed to read data: %w", err)
		}
	}

	if reader.Len() != 0 {
		return nil, fmt.Errorf("trailing bytes after decoding")
	}

	return p, nil
}

// Validate checks that the payload is addressed to the given receiver adapter
// and collector, and that the embedded message reproduces the payload msgId.
// It returns the decoded message on success.
func (p *AdapterPayload) Validate(self, finalDestination common.Address) (*Message, error) {
	if p.ReceiverAdapter != self {
		return nil, fmt.Errorf("%w: payload names %s, decoding adapter is %s",
			ErrWrongReceiverAdapter, p.ReceiverAdapter.Hex(), self.Hex())
	}
	if p.FinalDestination != finalDestination {
		return nil, fmt.Errorf("%w: payload names %s, configured collector is %s",
			ErrWrongFinalDestination, p.FinalDestination.Hex(), finalDestination.Hex())
	}

	msg, err := DecodeMessage(p.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded message: %w", err)
	}

	id, err := msg.MessageID()
	if err != nil {
		return nil, fmt.Errorf("failed to compute message ID: %w", err)
	}
	if id != p.MsgID {
		return nil, fmt.Errorf("%w: computed %s, payload carries %s",
			ErrPayloadMessageMismatch, id.String(), p.MsgID.String())
	}

	return msg, nil
}

// Package protocol defines the canonical cross-chain message format shared by
// the dispatcher, the bridge adapters and the collector. The message encoding
// is the single source of truth for message identity: every component
// correlates on the keccak256 hash of the canonical encoding and nothing else.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MessageVersion is the current canonical encoding version.
	MessageVersion = 1

	// MaxCallDataSize bounds the embedded calldata. Messages are relayed by
	// external bridges with their own payload limits; 64kb is below all of them.
	MaxCallDataSize = math.MaxUint16

	// minEncodedMessageSize is version(1) + srcChain(8) + dstChain(8) + nonce(8) +
	// target(20) + nativeValue(32) + expiration(8) + callDataLen(4).
	minEncodedMessageSize = 89
)

// Message is the canonical representation of one cross-chain call. It is
// created by the dispatcher at dispatch time and immutable thereafter; every
// adapter and the collector reference it by MessageID.
type Message struct {
	SrcChainID  ChainID        `json:"src_chain_id"`
	DstChainID  ChainID        `json:"dst_chain_id"`
	Nonce       Nonce          `json:"nonce"`
	Target      common.Address `json:"target"`
	NativeValue *big.Int       `json:"native_value"`
	// Expiration is the unix timestamp (seconds) after which the message is
	// void. Zero means the message never expires.
	Expiration uint64    `json:"expiration"`
	CallData   ByteSlice `json:"call_data"`
}

// NewMessage creates a new message with the given parameters.
func NewMessage(
	srcChainID, dstChainID ChainID,
	nonce Nonce,
	target common.Address,
	nativeValue *big.Int,
	expiration uint64,
	callData []byte,
) (*Message, error) {
	if srcChainID == 0 {
		return nil, fmt.Errorf("src chain id cannot be zero")
	}
	if dstChainID == 0 {
		return nil, fmt.Errorf("dst chain id cannot be zero")
	}
	if len(callData) > MaxCallDataSize {
		return nil, fmt.Errorf("callData length %d exceeds maximum %d", len(callData), MaxCallDataSize)
	}
	if nativeValue != nil && nativeValue.Sign() < 0 {
		return nil, fmt.Errorf("nativeValue cannot be negative")
	}
	if nativeValue != nil && nativeValue.BitLen() > 256 {
		return nil, fmt.Errorf("nativeValue exceeds 256 bits")
	}

	return &Message{
		SrcChainID:  srcChainID,
		DstChainID:  dstChainID,
		Nonce:       nonce,
		Target:      target,
		NativeValue: nativeValue,
		Expiration:  expiration,
		CallData:    callData,
	}, nil
}

// Encode returns the canonical encoding of this message. The encoding is
// deterministic: two logically identical messages always encode identically.
func (m *Message) Encode() ([]byte, error) {
	if len(m.CallData) > MaxCallDataSize {
		return nil, fmt.Errorf("callData length %d exceeds maximum %d", len(m.CallData), MaxCallDataSize)
	}
	if m.NativeValue != nil && (m.NativeValue.Sign() < 0 || m.NativeValue.BitLen() > 256) {
		return nil, fmt.Errorf("nativeValue out of range")
	}

	var buf bytes.Buffer

	// Version (1 byte)
	_ = buf.WriteByte(MessageVersion)

	// Chain ids and nonce (8 bytes each, big-endian)
	if err := binary.Write(&buf, binary.BigEndian, uint64(m.SrcChainID)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint64(m.DstChainID)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint64(m.Nonce)); err != nil {
		return nil, err
	}

	// Target (20 bytes)
	_, _ = buf.Write(m.Target.Bytes())

	// Native value (32 bytes, big-endian)
	valueBytes := make([]byte, 32)
	if m.NativeValue != nil {
		m.NativeValue.FillBytes(valueBytes)
	}
	_, _ = buf.Write(valueBytes)

	// Expiration (8 bytes, big-endian)
	if err := binary.Write(&buf, binary.BigEndian, m.Expiration); err != nil {
		return nil, err
	}

	// Call data (4 bytes length prefix)
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(m.CallData))); err != nil {
		return nil, err
	}
	_, _ = buf.Write(m.CallData)

	return buf.Bytes(), nil
}

// DecodeMessage decodes a Message from its canonical encoding.
func DecodeMessage(data []byte) (*Message, error) {
	if len(data) < minEncodedMessageSize {
		return nil, fmt.Errorf("data too short for message")
	}

	reader := bytes.NewReader(data)
	msg := &Message{}

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != MessageVersion {
		return nil, fmt.Errorf("unsupported message version %d", version)
	}

	var srcChain, dstChain, nonce uint64
	if err := binary.Read(reader, binary.BigEndian, &srcChain); err != nil {
		return nil, fmt.Errorf("failed to read src chain id: %w", err)
	}
	if err := binary.Read(reader, binary.BigEndian, &dstChain); err != nil {
		return nil, fmt.Errorf("failed to read dst chain id: %w", err)
	}
	if err := binary.Read(reader, binary.BigEndian, &nonce); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	msg.SrcChainID = ChainID(srcChain)
	msg.DstChainID = ChainID(dstChain)
	msg.Nonce = Nonce(nonce)

	targetBytes := make([]byte, common.AddressLength)
	if _, err := io.ReadFull(reader, targetBytes); err != nil {
		return nil, fmt.Errorf("failed to read target: %w", err)
	}
	msg.Target = common.BytesToAddress(targetBytes)

	valueBytes := make([]byte, 32)
	if _, err := io.ReadFull(reader, valueBytes); err != nil {
		return nil, fmt.Errorf("failed to read native value: %w", err)
	}
	msg.NativeValue = new(big.Int).SetBytes(valueBytes)

	if err := binary.Read(reader, binary.BigEndian, &msg.Expiration); err != nil {
		return nil, fmt.Errorf("failed to read expiration: %w", err)
	}

	var callDataLen uint32
	if err := binary.Read(reader, binary.BigEndian, &callDataLen); err != nil {
		return nil, fmt.Errorf("failed to read call data length: %w", err)
	}
	if callDataLen == 0 {
		msg.CallData = nil
	} else {
		if callDataLen > MaxCallDataSize {
			return nil, fmt.Errorf("call data length %d exceeds maximum %d", callDataLen, MaxCallDataSize)
		}
		msg.CallData = make([]byte, callDataLen)
		if _, err := io.ReadFull(reader, msg.CallData); err != nil {
			return nil, fmt.Errorf("failed to read call data: %w", err)
		}
	}

	// Ensure all data was consumed
	if reader.Len() != 0 {
		return nil, fmt.Errorf("trailing bytes after decoding")
	}

	return msg, nil
}

// MessageID returns the message ID of this message (keccak256 of the canonical encoding).
func (m *Message) MessageID() (Bytes32, error) {
	encoded, err := m.Encode()
	if err != nil {
		return Bytes32{}, err
	}
	return Keccak256(encoded), nil
}

// MustMessageID returns the message ID of this message, returning empty Bytes32 on encoding errors.
// Use this when you want a simple getter that ignores errors (i.e. for logging).
func (m *Message) MustMessageID() Bytes32 {
	id, err := m.MessageID()
	if err != nil {
		return Bytes32{}
	}
	return id
}

// Value returns the native value of the message, never nil.
func (m *Message) Value() *big.Int {
	if m.NativeValue == nil {
		return new(big.Int)
	}
	return m.NativeValue
}

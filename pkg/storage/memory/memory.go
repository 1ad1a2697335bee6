// Package memory provides in-memory storage backends. They are the default
// for tests and the single-process simulator; the store interfaces they
// satisfy are declared by their consumers (dispatch, collector, timelock).
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/multibridge/mma/pkg/model"
	"github.com/multibridge/mma/pkg/protocol"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// MessageRecordStore keeps per-message aggregation records keyed by msgId.
type MessageRecordStore struct {
	mu      sync.RWMutex
	records map[protocol.Bytes32]*model.MessageRecord
	order   []protocol.Bytes32
}

func NewMessageRecordStore() *MessageRecordStore {
	return &MessageRecordStore{
		records: make(map[protocol.Bytes32]*model.MessageRecord),
	}
}

func (s *MessageRecordStore) Get(_ context.Context, msgID protocol.Bytes32) (*model.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[msgID]
	if !ok {
		return nil, fmt.Errorf("message record %s: %w", msgID.String(), mmacommon.ErrRecordNotFound)
	}
	return record, nil
}

func (s *MessageRecordStore) Put(_ context.Context, record *model.MessageRecord) error {
	if record == nil {
		return fmt.Errorf("record must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.MsgID]; !ok {
		s.order = append(s.order, record.MsgID)
	}
	s.records[record.MsgID] = record
	return nil
}

// All returns every stored record in first-seen order.
func (s *MessageRecordStore) All(_ context.Context) ([]*model.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.MessageRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}

// ScheduledTransactionStore keeps timelock queue entries keyed by txId.
type ScheduledTransactionStore struct {
	mu    sync.RWMutex
	txs   map[protocol.Bytes32]*model.ScheduledTransaction
	order []protocol.Bytes32
}

func NewScheduledTransactionStore() *ScheduledTransactionStore {
	return &ScheduledTransactionStore{
		txs: make(map[protocol.Bytes32]*model.ScheduledTransaction),
	}
}

func (s *ScheduledTransactionStore) Get(_ context.Context, txID protocol.Bytes32) (*model.ScheduledTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[txID]
	if !ok {
		return nil, fmt.Errorf("scheduled transaction %s: %w", txID.String(), mmacommon.ErrRecordNotFound)
	}
	return tx, nil
}

func (s *ScheduledTransactionStore) Put(_ context.Context, tx *model.ScheduledTransaction) error {
	if tx == nil {
		return fmt.Errorf("transaction must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.TxID]; !ok {
		s.order = append(s.order, tx.TxID)
	}
	s.txs[tx.TxID] = tx
	return nil
}

// All returns every stored transaction in schedule order.
func (s *ScheduledTransactionStore) All(_ context.Context) ([]*model.ScheduledTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.ScheduledTransaction, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.txs[id])
	}
	return out, nil
}

// NonceStore allocates strictly-increasing per-destination nonces with no
// gaps: NextNonce peeks, CommitNonce consumes, and commits must arrive in
// order.
type NonceStore struct {
	mu   sync.Mutex
	last map[protocol.ChainID]protocol.Nonce
}

func NewNonceStore() *NonceStore {
	return &NonceStore{
		last: make(map[protocol.ChainID]protocol.Nonce),
	}
}

func (s *NonceStore) NextNonce(_ context.Context, dstChainID protocol.ChainID) (protocol.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[dstChainID] + 1, nil
}

func (s *NonceStore) CommitNonce(_ context.Context, dstChainID protocol.ChainID, nonce protocol.Nonce) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expected := s.last[dstChainID] + 1; nonce != expected {
		return fmt.Errorf("nonce commit out of order for chain %d: got %d, expected %d", dstChainID, nonce, expected)
	}
	s.last[dstChainID] = nonce
	return nil
}

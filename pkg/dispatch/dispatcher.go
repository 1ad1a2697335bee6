// Package dispatch implements the source-chain entry point: one logical
// message fanned out through every registered bridge adapter in a single
// call, with per-destination nonce allocation and bridge fee settlement.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/multibridge/mma/pkg/adapter"
	"github.com/multibridge/mma/pkg/model"
	"github.com/multibridge/mma/pkg/protocol"

	mmacommon "github.com/multibridge/mma/pkg/common"
)

// NonceStore allocates per-destination nonces. NextNonce peeks without
// consuming; CommitNonce advances. A failed dispatch never commits, so nonces
// stay gapless per destination.
type NonceStore interface {
	NextNonce(ctx context.Context, dstChainID protocol.ChainID) (protocol.Nonce, error)
	CommitNonce(ctx context.Context, dstChainID protocol.ChainID, nonce protocol.Nonce) error
}

// DispatchRequest describes one message to fan out.
type DispatchRequest struct {
	DstChainID  protocol.ChainID
	Target      common.Address
	NativeValue *big.Int
	// Expiration is a unix timestamp (seconds); zero means never.
	Expiration uint64
	CallData   []byte
	// ExcludeAdapters skips the listed sender adapters for this dispatch only.
	ExcludeAdapters []common.Address
	// RefundAddress receives the unspent payment; zero means the caller.
	RefundAddress common.Address
	// SuccessThreshold overrides the configured threshold for this dispatch;
	// zero falls back to it.
	SuccessThreshold uint64
}

// DispatchResult reports the outcome of one fan-out.
type DispatchResult struct {
	MsgID        protocol.Bytes32
	Nonce        protocol.Nonce
	AdaptersUsed []common.Address
	SuccessCount int
	// Refund is the unspent payment returned to the caller.
	Refund *big.Int
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// SrcChainID is the chain this dispatcher originates messages from.
	SrcChainID protocol.ChainID
	// Address is the dispatcher's own fee account.
	Address common.Address
	// Owner manages adapters and authorized callers.
	Owner common.Address
	// SuccessThreshold is the minimum number of adapters that must accept a
	// dispatch. Zero means every selected adapter must accept.
	SuccessThreshold uint64
}

// Dispatcher fans one message out through every registered sender adapter.
// Dispatching is restricted to authorized callers; adapter and caller
// management to the owner.
type Dispatcher struct {
	cfg    DispatcherConfig
	nonces NonceStore
	ledger *FeeLedger
	sink   mmacommon.EventSink
	mon    mmacommon.Monitoring
	clock  mmacommon.TimeProvider
	logger *zap.SugaredLogger

	mu                sync.Mutex
	adapters          map[common.Address]adapter.SenderAdapter
	authorizedCallers map[common.Address]struct{}
	// destLocks serialize the nonce peek, fan-out and commit per destination,
	// so concurrent dispatches to one chain cannot carry the same nonce.
	destLocks map[protocol.ChainID]*sync.Mutex
}

func NewDispatcher(
	cfg DispatcherConfig,
	nonces NonceStore,
	ledger *FeeLedger,
	sink mmacommon.EventSink,
	mon mmacommon.Monitoring,
	clock mmacommon.TimeProvider,
	logger *zap.SugaredLogger,
) (*Dispatcher, error) {
	if cfg.SrcChainID == 0 {
		return nil, mmacommon.ErrZeroChainID
	}
	if cfg.Address == (common.Address{}) || cfg.Owner == (common.Address{}) {
		return nil, mmacommon.ErrZeroAddress
	}
	if nonces == nil || ledger == nil {
		return nil, fmt.Errorf("nonce store and ledger must not be nil")
	}

	return &Dispatcher{
		cfg:               cfg,
		nonces:            nonces,
		ledger:            ledger,
		sink:              sink,
		mon:               mon,
		clock:             clock,
		logger:            logger.With("component", "dispatcher"),
		adapters:          make(map[common.Address]adapter.SenderAdapter),
		authorizedCallers: make(map[common.Address]struct{}),
		destLocks:         make(map[protocol.ChainID]*sync.Mutex),
	}, nil
}

func (d *Dispatcher) destLock(dstChainID protocol.ChainID) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.destLocks[dstChainID]
	if !ok {
		lock = &sync.Mutex{}
		d.destLocks[dstChainID] = lock
	}
	return lock
}

// SetAuthorizedCaller grants or revokes dispatch rights. Owner only.
func (d *Dispatcher) SetAuthorizedCaller(caller, subject common.Address, allowed bool) error {
	if caller != d.cfg.Owner {
		return fmt.Errorf("caller %s is not the owner: %w", caller.Hex(), mmacommon.ErrUnauthorizedCaller)
	}
	if subject == (common.Address{}) {
		return mmacommon.ErrZeroAddress
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if allowed {
		d.authorizedCallers[subject] = struct{}{}
	} else {
		delete(d.authorizedCallers, subject)
	}
	return nil
}

// AddSenderAdapters registers new sender adapters. Owner only; the batch is
// applied atomically.
func (d *Dispatcher) AddSenderAdapters(caller common.Address, adapters []adapter.SenderAdapter) error {
	if caller != d.cfg.Owner {
		return fmt.Errorf("caller %s is not the owner: %w", caller.Hex(), mmacommon.ErrUnauthorizedCaller)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, a := range adapters {
		if a == nil {
			return fmt.Errorf("adapter at index %d is nil", i)
		}
		if a.Address() == (common.Address{}) {
			return mmacommon.ErrZeroAddress
		}
		if _, ok := d.adapters[a.Address()]; ok {
			return fmt.Errorf("%w: %s", mmacommon.ErrDuplicateAdapter, a.Address().Hex())
		}
		for j := i + 1; j < len(adapters); j++ {
			if adapters[j] != nil && adapters[j].Address() == a.Address() {
				return fmt.Errorf("%w: %s", mmacommon.ErrDuplicateAdapter, a.Address().Hex())
			}
		}
	}

	for _, a := range adapters {
		d.adapters[a.Address()] = a
	}
	return nil
}

// RemoveSenderAdapters deregisters sender adapters by address. Owner only.
func (d *Dispatcher) RemoveSenderAdapters(caller common.Address, addresses []common.Address) error {
	if caller != d.cfg.Owner {
		return fmt.Errorf("caller %s is not the owner: %w", caller.Hex(), mmacommon.ErrUnauthorizedCaller)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, addr := range addresses {
		if _, ok := d.adapters[addr]; !ok {
			return fmt.Errorf("%w: %s", mmacommon.ErrAdapterNotFound, addr.Hex())
		}
	}
	for _, addr := range addresses {
		delete(d.adapters, addr)
	}
	return nil
}

// Adapters returns the registered sender adapter addresses, sorted.
func (d *Dispatcher) Adapters() []common.Address {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]common.Address, 0, len(d.adapters))
	for addr := range d.adapters {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}

// EstimateTotalFee sums the bridge fees the selected adapters would quote for
// the request, so callers can size their payment.
func (d *Dispatcher) EstimateTotalFee(ctx context.Context, req DispatchRequest) (*big.Int, error) {
	if err := validateDispatchRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid dispatch request: %w", err)
	}

	selected := d.selectAdapters(req.ExcludeAdapters)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no adapters selected", mmacommon.ErrAdapterNotFound)
	}

	nonce, err := d.nonces.NextNonce(ctx, req.DstChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to peek nonce: %w", err)
	}
	msg, err := protocol.NewMessage(d.cfg.SrcChainID, req.DstChainID, nonce, req.Target, req.NativeValue, req.Expiration, req.CallData)
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, a := range selected {
		fee, err := a.GetMessageFee(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("adapter %s fee quote failed: %w", a.Address().Hex(), err)
		}
		total.Add(total, fee)
	}
	return total, nil
}

// DispatchMessage validates the request, allocates the next nonce for the
// destination, and fans the message out through every selected adapter.
// The payment is debited from the caller up front; bridge fees are settled
// per accepting adapter and the remainder refunded to the refund address
// (the caller when unset). The nonce is committed
// only when at least the configured threshold of adapters accepted.
func (d *Dispatcher) DispatchMessage(ctx context.Context, caller common.Address, payment *big.Int, req DispatchRequest) (*DispatchResult, error) {
	d.mu.Lock()
	_, authorized := d.authorizedCallers[caller]
	d.mu.Unlock()
	if !authorized {
		return nil, fmt.Errorf("caller %s: %w", caller.Hex(), mmacommon.ErrUnauthorizedCaller)
	}

	if err := validateDispatchRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid dispatch request: %w", err)
	}
	now := d.clock.Now()
	if req.Expiration != 0 && req.Expiration <= uint64(now.Unix()) {
		return nil, fmt.Errorf("expiration %d is not in the future: %w", req.Expiration, mmacommon.ErrMessageExpired)
	}

	selected := d.selectAdapters(req.ExcludeAdapters)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no adapters selected", mmacommon.ErrAdapterNotFound)
	}
	threshold := req.SuccessThreshold
	if threshold == 0 {
		threshold = d.cfg.SuccessThreshold
	}
	if threshold == 0 {
		threshold = uint64(len(selected))
	}
	if uint64(len(selected)) < threshold {
		return nil, fmt.Errorf("%w: %d selected, threshold %d", mmacommon.ErrDispatchUnderThreshold, len(selected), threshold)
	}
	refundTo := req.RefundAddress
	if refundTo == (common.Address{}) {
		refundTo = caller
	}

	// Held through commit: the peeked nonce is baked into the message hash, so
	// a second dispatch to this destination must not start until it is either
	// committed or released.
	lock := d.destLock(req.DstChainID)
	lock.Lock()
	defer lock.Unlock()

	nonce, err := d.nonces.NextNonce(ctx, req.DstChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to peek nonce: %w", err)
	}
	msg, err := protocol.NewMessage(d.cfg.SrcChainID, req.DstChainID, nonce, req.Target, req.NativeValue, req.Expiration, req.CallData)
	if err != nil {
		return nil, err
	}
	msgID, err := msg.MessageID()
	if err != nil {
		return nil, fmt.Errorf("failed to compute message id: %w", err)
	}

	// Pull the payment into the dispatcher's account; everything not spent on
	// bridge fees goes back to the caller before returning.
	if payment == nil {
		payment = new(big.Int)
	}
	if err := d.ledger.Transfer(caller, d.cfg.Address, payment); err != nil {
		return nil, fmt.Errorf("failed to collect payment: %w", err)
	}
	remaining := new(big.Int).Set(payment)

	successCount := 0
	used := make([]common.Address, 0, len(selected))
	for _, a := range selected {
		used = append(used, a.Address())

		fee, feeErr := a.GetMessageFee(ctx, msg)
		if feeErr != nil {
			d.recordAdapterFailure(ctx, msgID, a, nil, fmt.Errorf("fee quote failed: %w", feeErr))
			continue
		}
		if remaining.Cmp(fee) < 0 {
			d.recordAdapterFailure(ctx, msgID, a, fee, fmt.Errorf("payment exhausted: fee %s, remaining %s", fee.String(), remaining.String()))
			continue
		}

		if _, dispatchErr := a.DispatchMessage(ctx, msg, fee); dispatchErr != nil {
			d.recordAdapterFailure(ctx, msgID, a, fee, dispatchErr)
			continue
		}

		if err := d.ledger.Transfer(d.cfg.Address, a.Address(), fee); err != nil {
			return nil, fmt.Errorf("failed to settle fee for adapter %s: %w", a.Address().Hex(), err)
		}
		remaining.Sub(remaining, fee)
		successCount++
		d.publish(ctx, model.AdapterDispatchEvent{
			BaseEvent: model.NewBaseEvent(now),
			MsgID:     msgID,
			Adapter:   a.Address(),
			Bridge:    a.Name(),
			Fee:       fee,
			Success:   true,
		})
	}

	// Unspent payment goes back to the refund address whether or not the
	// dispatch stands, keeping the dispatcher's own account at zero.
	if err := d.ledger.Transfer(d.cfg.Address, refundTo, remaining); err != nil {
		return nil, fmt.Errorf("failed to refund %s: %w", refundTo.Hex(), err)
	}

	if uint64(successCount) < threshold {
		d.mon.Metrics().IncrementAdapterFailures(ctx)
		return nil, fmt.Errorf("%w: %d of %d accepted, threshold %d",
			mmacommon.ErrDispatchUnderThreshold, successCount, len(selected), threshold)
	}

	if err := d.nonces.CommitNonce(ctx, req.DstChainID, nonce); err != nil {
		return nil, fmt.Errorf("failed to commit nonce: %w", err)
	}

	d.mon.Metrics().RecordDispatchFanout(ctx, successCount)
	d.publish(ctx, model.DispatchSummaryEvent{
		BaseEvent:    model.NewBaseEvent(now),
		MsgID:        msgID,
		DstChainID:   req.DstChainID,
		Nonce:        nonce,
		AdaptersUsed: used,
		SuccessCount: successCount,
		Refund:       remaining,
	})
	d.logger.Infow("Dispatched message",
		"msgID", msgID.String(),
		"dstChainID", req.DstChainID,
		"nonce", nonce,
		"successCount", successCount,
	)

	return &DispatchResult{
		MsgID:        msgID,
		Nonce:        nonce,
		AdaptersUsed: used,
		SuccessCount: successCount,
		Refund:       remaining,
	}, nil
}

func (d *Dispatcher) selectAdapters(exclude []common.Address) []adapter.SenderAdapter {
	d.mu.Lock()
	defer d.mu.Unlock()

	excluded := make(map[common.Address]struct{}, len(exclude))
	for _, addr := range exclude {
		excluded[addr] = struct{}{}
	}

	addrs := make([]common.Address, 0, len(d.adapters))
	for addr := range d.adapters {
		if _, skip := excluded[addr]; !skip {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})

	out := make([]adapter.SenderAdapter, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, d.adapters[addr])
	}
	return out
}

func (d *Dispatcher) recordAdapterFailure(ctx context.Context, msgID protocol.Bytes32, a adapter.SenderAdapter, fee *big.Int, cause error) {
	d.mon.Metrics().IncrementAdapterFailures(ctx)
	d.logger.Warnw("Adapter dispatch failed",
		"msgID", msgID.String(),
		"adapter", a.Address().Hex(),
		"bridge", a.Name(),
		"error", cause,
	)
	d.publish(ctx, model.AdapterDispatchEvent{
		BaseEvent: model.NewBaseEvent(d.clock.Now()),
		MsgID:     msgID,
		Adapter:   a.Address(),
		Bridge:    a.Name(),
		Fee:       fee,
		Success:   false,
		Reason:    cause.Error(),
	})
}

func (d *Dispatcher) publish(ctx context.Context, event mmacommon.Event) {
	if d.sink != nil {
		d.sink.Publish(ctx, event)
	}
}

package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	// If the max base fee is not explicitly configured, use 3x the current
	// base fee estimate to allow for an increase before inclusion.
	defaultBaseFeeFactor = 3

	receiptPollInterval       = 2 * time.Second
	defaultTxInclusionTimeout = 30 * time.Second
	defaultRPCTimeout         = 10 * time.Second
	defaultGasLimit           = 1_000_000
)

// EVMExecutorConfig configures an EVMExecutor.
type EVMExecutorConfig struct {
	RPCEndpoint string
	// PrivateKey is the hex-encoded key the executor signs with.
	PrivateKey string
	// MaxBaseFeeWei caps the base fee; zero means estimate from the chain.
	MaxBaseFeeWei uint64
	// GasLimit for outbound calls; zero means defaultGasLimit.
	GasLimit uint64
	// TxInclusionTimeout bounds the receipt wait; zero means the default.
	TxInclusionTimeout time.Duration
}

// EVMExecutor broadcasts the embedded call as a signed transaction on a live
// EVM chain and waits for the receipt. The from parameter of Call is ignored:
// on a real chain the sender is the executor's own key.
type EVMExecutor struct {
	client             *ethclient.Client
	key                *ecdsa.PrivateKey
	sender             common.Address
	evmChainID         *big.Int
	gasLimit           uint64
	maxBaseFee         *big.Int
	txInclusionTimeout time.Duration
	nonceLock          sync.Mutex
	currentNonce       uint64
	logger             *zap.SugaredLogger
}

// NewEVMExecutor dials the endpoint and initializes the sender nonce from the
// pending state, so restarts account for transactions still in the mempool.
func NewEVMExecutor(ctx context.Context, cfg EVMExecutorConfig, logger *zap.SugaredLogger) (*EVMExecutor, error) {
	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	sender := crypto.PubkeyToAddress(key.PublicKey)

	client, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}

	evmChainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	pendingNonce, err := client.PendingNonceAt(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	inclusionTimeout := cfg.TxInclusionTimeout
	if inclusionTimeout == 0 {
		inclusionTimeout = defaultTxInclusionTimeout
	}

	logger.Infow("Initialized EVM executor",
		"evmChainID", evmChainID.String(),
		"sender", sender.Hex(),
		"pendingNonce", pendingNonce,
	)

	return &EVMExecutor{
		client:             client,
		key:                key,
		sender:             sender,
		evmChainID:         evmChainID,
		gasLimit:           gasLimit,
		maxBaseFee:         new(big.Int).SetUint64(cfg.MaxBaseFeeWei),
		txInclusionTimeout: inclusionTimeout,
		currentNonce:       pendingNonce,
		logger:             logger,
	}, nil
}

// Sender returns the address transactions are signed with.
func (e *EVMExecutor) Sender() common.Address {
	return e.sender
}

// Call signs and broadcasts the call, then waits for the receipt. A reverted
// receipt is a failed CallResult, not an error in broadcasting.
func (e *EVMExecutor) Call(ctx context.Context, _, target common.Address, value *big.Int, data []byte) CallResult {
	maxBaseFee := e.maxBaseFee
	if maxBaseFee.Sign() == 0 {
		head, err := e.headerWithTimeout(ctx)
		if err != nil {
			return Fail(fmt.Errorf("failed to get chain head: %w", err))
		}
		maxBaseFee = new(big.Int).Mul(head.BaseFee, big.NewInt(defaultBaseFeeFactor))
	}

	tipCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	gasTipCap, err := e.client.SuggestGasTipCap(tipCtx)
	cancel()
	if err != nil {
		return Fail(fmt.Errorf("failed to get gas tip cap: %w", err))
	}
	gasFeeCap := new(big.Int).Add(maxBaseFee, gasTipCap)

	if value == nil {
		value = new(big.Int)
	}

	// Hold the lock until the transaction is sent so txs go out in nonce order.
	e.nonceLock.Lock()
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   e.evmChainID,
		Nonce:     e.currentNonce,
		To:        &target,
		Gas:       e.gasLimit,
		GasFeeCap: gasFeeCap,
		GasTipCap: gasTipCap,
		Value:     value,
		Data:      data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(e.evmChainID), e.key)
	if err != nil {
		e.nonceLock.Unlock()
		return Fail(fmt.Errorf("failed to sign transaction: %w", err))
	}

	sendCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	err = e.client.SendTransaction(sendCtx, signedTx)
	cancel()
	if err != nil {
		e.nonceLock.Unlock()
		return Fail(fmt.Errorf("failed to send transaction: %w", err))
	}
	e.currentNonce++
	e.nonceLock.Unlock()

	e.logger.Infow("Sent transaction",
		"txHash", signedTx.Hash().Hex(),
		"target", target.Hex(),
	)

	receipt, err := e.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return Fail(fmt.Errorf("failed to get transaction receipt: %w", err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return Fail(fmt.Errorf("transaction %s reverted", signedTx.Hash().Hex()))
	}

	return Ok(nil)
}

func (e *EVMExecutor) headerWithTimeout(ctx context.Context) (*types.Header, error) {
	callCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()
	return e.client.HeaderByNumber(callCtx, nil)
}

func (e *EVMExecutor) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	deadline := time.NewTimer(e.txInclusionTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		callCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		receipt, err := e.client.TransactionReceipt(callCtx, txHash)
		cancel()
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			e.logger.Warnw("Failed to get transaction receipt, retrying", "txHash", txHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("transaction %s not included within %s", txHash.Hex(), e.txInclusionTimeout)
		case <-ticker.C:
		}
	}
}
